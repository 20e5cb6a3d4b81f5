package aggregation

import (
	"math"
	"sort"

	"github.com/inferloop/flsim/internal/clustering"
	"github.com/inferloop/flsim/internal/distance"
	"github.com/inferloop/flsim/internal/model"
)

// aggregateGravity clusters the clients by their weight vectors, then pulls
// the global model toward each cluster centroid with an attraction weight of
// G * mass_cluster * mass_global / max(d, eps)^2. Cluster mass is the
// configured clusterWeight plus clientWeight per member; the global model's
// mass counts every participant. With a single cluster this degrades to that
// cluster's centroid, a FedAvg-like result.
func (e *Engine) aggregateGravity(round int, global *model.ModelWeights, updates []ClientUpdate) (*Result, error) {
	params := e.config.Gravity

	points := make([]clustering.Point, 0, len(updates))
	for _, u := range updates {
		points = append(points, clustering.Point{ID: u.ClientID, Vector: u.Weights.Flatten()})
	}

	clusterer, err := clustering.NewEngine(e.config.KMeans, e.calc, e.logger)
	if err != nil {
		return nil, err
	}
	clusterResult, err := clusterer.Cluster(points)
	if err != nil {
		return nil, err
	}

	clusters := clusterResult.Clusters
	if params.Dynamic != nil && round >= params.Dynamic.ChangeRound {
		clusters = reassignMember(clusters, params.Dynamic)
	}

	byID := updatesByID(updates)

	// Centroids are recomputed from members so a dynamic reassignment is
	// reflected in the cluster it joined.
	type clusterMass struct {
		cluster  clustering.Cluster
		centroid []float64
		mass     float64
	}
	masses := make([]clusterMass, 0, len(clusters))
	for _, c := range clusters {
		vectors := make([][]float64, 0, len(c.Members))
		for _, id := range c.Members {
			if u, ok := byID[id]; ok {
				vectors = append(vectors, u.Weights.Flatten())
			}
		}
		if len(vectors) == 0 {
			continue
		}
		masses = append(masses, clusterMass{
			cluster:  c,
			centroid: plainAverage(vectors),
			mass:     params.ClusterWeight + params.ClientWeight*float64(len(vectors)),
		})
	}

	globalFlat := global.Flatten()
	globalMass := params.ClusterWeight + params.ClientWeight*float64(len(updates))

	attractions := make([]float64, len(masses))
	var totalAttraction float64
	for i, cm := range masses {
		d := e.calc.Distance(cm.centroid, globalFlat)
		if d < distance.Epsilon {
			d = distance.Epsilon
		}
		attractions[i] = params.GravitationConstant * cm.mass * globalMass / (d * d)
		totalAttraction += attractions[i]
	}

	flat := make([]float64, len(globalFlat))
	if totalAttraction <= 0 || math.IsInf(totalAttraction, 1) {
		// All attractions degenerate; fall back to the plain centroid mean.
		vectors := make([][]float64, len(masses))
		for i, cm := range masses {
			vectors[i] = cm.centroid
		}
		flat = plainAverage(vectors)
	} else {
		for i, cm := range masses {
			w := attractions[i] / totalAttraction
			for j, v := range cm.centroid {
				flat[j] += w * v
			}
		}
	}

	merged, err := model.Unflatten(flat, updates[0].Weights.Shape())
	if err != nil {
		return nil, err
	}

	metrics := make([]model.ClusterMetrics, 0, len(masses))
	for _, cm := range masses {
		members := append([]string(nil), cm.cluster.Members...)
		sort.Strings(members)
		metrics = append(metrics, model.ClusterMetrics{
			ClusterID:       cm.cluster.ID,
			Accuracy:        clusterAccuracy(members, byID),
			MemberClientIDs: members,
			Approximate:     !clusterResult.Converged,
		})
	}

	return &Result{
		Weights:              merged,
		ClusterMetrics:       metrics,
		ClusteringIterations: clusterResult.Iterations,
	}, nil
}

// reassignMember moves the dynamic client into the cluster containing the
// receiver client, leaving the k-means result otherwise intact.
func reassignMember(clusters []clustering.Cluster, d *DynamicReassignment) []clustering.Cluster {
	receiverCluster := -1
	for i, c := range clusters {
		for _, id := range c.Members {
			if id == d.ReceiverClient {
				receiverCluster = i
				break
			}
		}
	}
	if receiverCluster < 0 {
		return clusters
	}

	out := make([]clustering.Cluster, len(clusters))
	for i, c := range clusters {
		members := make([]string, 0, len(c.Members))
		for _, id := range c.Members {
			if id == d.DynamicClient && i != receiverCluster {
				continue
			}
			members = append(members, id)
		}
		if i == receiverCluster && !contains(members, d.DynamicClient) && clustersContain(clusters, d.DynamicClient) {
			members = append(members, d.DynamicClient)
		}
		out[i] = clustering.Cluster{ID: c.ID, Members: members, Centroid: c.Centroid}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func clustersContain(clusters []clustering.Cluster, id string) bool {
	for _, c := range clusters {
		if contains(c.Members, id) {
			return true
		}
	}
	return false
}
