// Package fusion combines first-stage scores with warm-store signals into a
// final ranking, then diversifies it with maximal marginal relevance.
package fusion

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

// Weights are the linear fusion coefficients. The version string keys the
// query cache, so two processes running different weight bundles never
// serve each other's cached rankings.
type Weights struct {
	BM25            float64 `yaml:"bm25"`
	EmbSim          float64 `yaml:"embSim"`
	Hostrank        float64 `yaml:"hostrank"`
	AnchorMatch     float64 `yaml:"anchorMatch"`
	StructuredBoost float64 `yaml:"structuredBoost"`
	Freshness       float64 `yaml:"freshness"`
	URLQuality      float64 `yaml:"urlQuality"`
	Spamness        float64 `yaml:"spamness"`
	IntentAlign     float64 `yaml:"intentAlign"`

	version string
}

// DefaultWeights returns the shipped coefficients.
func DefaultWeights() *Weights {
	w := &Weights{
		BM25:            0.55,
		EmbSim:          0.15,
		Hostrank:        0.10,
		AnchorMatch:     0.06,
		StructuredBoost: 0.05,
		Freshness:       0.04,
		URLQuality:      0.03,
		Spamness:        0.08,
		IntentAlign:     0.04,
	}
	w.version = w.fingerprint()
	return w
}

// LoadWeights reads a yaml bundle; a missing path falls back to defaults.
// Fields absent from the file keep their default values.
func LoadWeights(path string) (*Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return nil, fmt.Errorf("read weights bundle: %w", err)
	}
	if err := yaml.Unmarshal(raw, w); err != nil {
		return nil, fmt.Errorf("parse weights bundle: %w", err)
	}
	w.version = w.fingerprint()
	return w, nil
}

// Version identifies this exact coefficient set.
func (w *Weights) Version() string { return w.version }

func (w *Weights) fingerprint() string {
	h := xxhash.New()
	fmt.Fprintf(h, "%g|%g|%g|%g|%g|%g|%g|%g|%g",
		w.BM25, w.EmbSim, w.Hostrank, w.AnchorMatch, w.StructuredBoost,
		w.Freshness, w.URLQuality, w.Spamness, w.IntentAlign)
	return fmt.Sprintf("%x", h.Sum64())
}
