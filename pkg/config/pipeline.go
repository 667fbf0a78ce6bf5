package config

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/rostersync/pkg/names"
	"github.com/hazyhaar/rostersync/pkg/stage"
)

// Pipeline holds the immutable components built from a Config. Reloading the
// configuration builds a new Pipeline; an existing one never changes.
type Pipeline struct {
	Vocabulary *stage.Vocabulary
	Normalizer *names.Normalizer
	Classifier *names.Classifier
	Deriver    *stage.Deriver
	Gate       *stage.Gate
}

// Pipeline builds the name and stage components. Aliases and subscription
// overrides that target unknown stages are dropped and logged when logger is
// not nil.
func (c *Config) Pipeline(logger *slog.Logger) (*Pipeline, error) {
	labels := c.Stages.Labels
	if labels == nil {
		labels = stage.DefaultLabels
	}
	aliases := c.Stages.Aliases
	if aliases == nil {
		aliases = stage.DefaultAliases
	}

	vocab, err := stage.NewVocabulary(labels, aliases)
	if err != nil {
		return nil, fmt.Errorf("config: stages: %w", err)
	}
	deriver, err := stage.NewDeriver(vocab, stage.DeriverOptions{
		Roles:     c.Stages.Roles,
		Overrides: c.Stages.SubscriptionOverrides,
	})
	if err != nil {
		return nil, fmt.Errorf("config: stages: %w", err)
	}
	gate, err := stage.NewGate(vocab, stage.GateOptions{
		Minimum:   c.Stages.Minimum,
		HardLocks: c.Stages.HardLocks,
	})
	if err != nil {
		return nil, fmt.Errorf("config: stages: %w", err)
	}

	if logger != nil {
		if dropped := vocab.Dropped(); len(dropped) > 0 {
			logger.Warn("stage aliases dropped: target not in vocabulary", "aliases", dropped)
		}
		if dropped := deriver.Dropped(); len(dropped) > 0 {
			logger.Warn("subscription overrides dropped: target not in vocabulary", "phrases", dropped)
		}
	}

	normalizer := names.NewNormalizer(c.Names.Options)
	classifier := names.NewClassifier(normalizer, names.ClassifierOptions{
		OrgKeywords:        c.Names.OrgKeywords,
		OrgTags:            c.Names.OrgTags,
		PersonTags:         c.Names.PersonTags,
		PreferOrganization: c.Names.PreferOrganization,
	})

	return &Pipeline{
		Vocabulary: vocab,
		Normalizer: normalizer,
		Classifier: classifier,
		Deriver:    deriver,
		Gate:       gate,
	}, nil
}
