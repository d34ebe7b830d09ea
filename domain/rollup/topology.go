package rollup

import (
	"fmt"
	"sort"

	"sisas/domain/contract"
	"sisas/domain/core"
)

// Topology is the membership map of the rollup tree, derived from loaded
// contract identities. Cardinality is enforced per-aggregate at rollup
// time, not here, so one malformed group fails alone; this builder only
// rejects inconsistent placements (a question claimed by two dimensions).
type Topology struct {
	Dimensions    map[core.DimensionID][]core.QuestionID
	Areas         map[core.AreaID][]core.DimensionID
	Clusters      map[core.ClusterID][]core.AreaID
	QuestionDim   map[core.QuestionID]core.DimensionID
	DimensionArea map[core.DimensionID]core.AreaID
	AreaCluster   map[core.AreaID]core.ClusterID
	Hash          core.Hash
}

// BuildTopology derives the tree from contract identities.
func BuildTopology(ids []contract.Identity) (*Topology, error) {
	t := &Topology{
		Dimensions:    make(map[core.DimensionID][]core.QuestionID),
		Areas:         make(map[core.AreaID][]core.DimensionID),
		Clusters:      make(map[core.ClusterID][]core.AreaID),
		QuestionDim:   make(map[core.QuestionID]core.DimensionID),
		DimensionArea: make(map[core.DimensionID]core.AreaID),
		AreaCluster:   make(map[core.AreaID]core.ClusterID),
	}

	for _, id := range ids {
		if prev, ok := t.QuestionDim[id.QuestionID]; ok {
			if prev != id.DimensionID {
				return nil, fmt.Errorf("question %s placed in dimensions %s and %s",
					id.QuestionID, prev, id.DimensionID)
			}
			continue
		}
		t.QuestionDim[id.QuestionID] = id.DimensionID
		t.Dimensions[id.DimensionID] = append(t.Dimensions[id.DimensionID], id.QuestionID)

		if prev, ok := t.DimensionArea[id.DimensionID]; ok {
			if prev != id.AreaID {
				return nil, fmt.Errorf("dimension %s placed in areas %s and %s",
					id.DimensionID, prev, id.AreaID)
			}
		} else {
			t.DimensionArea[id.DimensionID] = id.AreaID
			t.Areas[id.AreaID] = append(t.Areas[id.AreaID], id.DimensionID)
		}

		if prev, ok := t.AreaCluster[id.AreaID]; ok {
			if prev != id.ClusterID {
				return nil, fmt.Errorf("area %s placed in clusters %s and %s",
					id.AreaID, prev, id.ClusterID)
			}
		} else {
			t.AreaCluster[id.AreaID] = id.ClusterID
			t.Clusters[id.ClusterID] = append(t.Clusters[id.ClusterID], id.AreaID)
		}
	}

	t.sortMembers()
	t.Hash = t.computeHash()
	return t, nil
}

// ApplyClusterMembership replaces the contract-derived cluster membership
// with an externally declared map (from an assembly pack or workbook).
// Membership stays configuration-driven: no aggregator ever special-cases
// a cluster id.
func (t *Topology) ApplyClusterMembership(membership map[string][]string) {
	t.Clusters = make(map[core.ClusterID][]core.AreaID, len(membership))
	t.AreaCluster = make(map[core.AreaID]core.ClusterID)
	for cluster, areas := range membership {
		cid := core.ClusterID(cluster)
		for _, area := range areas {
			aid := core.AreaID(area)
			t.Clusters[cid] = append(t.Clusters[cid], aid)
			t.AreaCluster[aid] = cid
		}
	}
	t.sortMembers()
	t.Hash = t.computeHash()
}

// ClusterIDs returns the declared clusters in stable order.
func (t *Topology) ClusterIDs() []core.ClusterID {
	out := make([]core.ClusterID, 0, len(t.Clusters))
	for id := range t.Clusters {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Topology) sortMembers() {
	for _, qs := range t.Dimensions {
		sort.Slice(qs, func(i, j int) bool { return qs[i] < qs[j] })
	}
	for _, ds := range t.Areas {
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	}
	for _, as := range t.Clusters {
		sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	}
}

func (t *Topology) computeHash() core.Hash {
	flat := make(map[string][]string)
	for d, qs := range t.Dimensions {
		members := make([]string, len(qs))
		for i, q := range qs {
			members[i] = q.String()
		}
		flat["dimension:"+d.String()] = members
	}
	for a, ds := range t.Areas {
		members := make([]string, len(ds))
		for i, d := range ds {
			members[i] = d.String()
		}
		flat["area:"+a.String()] = members
	}
	for c, as := range t.Clusters {
		members := make([]string, len(as))
		for i, a := range as {
			members[i] = a.String()
		}
		flat["cluster:"+c.String()] = members
	}
	return core.ComputeTopologyHash(flat)
}
