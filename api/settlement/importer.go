package settlement

import (
	"context"
	"time"

	"CollectLedger/api/settlement/model"
	"CollectLedger/api/settlement/parsers"
	"CollectLedger/api/settlement/reconcile"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BatchRecorder keeps the audit trail of imports.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, b model.Batch) error
	RecentBatches(ctx context.Context, limit int) ([]model.Batch, error)
}

// EventPublisher receives a summary after each import.
type EventPublisher interface {
	Publish(event interface{}) error
}

// Archiver keeps a copy of the raw uploaded file.
type Archiver interface {
	Store(ctx context.Context, provider, fileName, hash string, body []byte) (string, error)
}

type ImportRequest struct {
	Provider model.Provider
	Mode     string
	FileName string
	Data     []byte
	Hash     string
}

// ImportEvent is what listeners on the events socket receive.
type ImportEvent struct {
	Type    string        `json:"type"`
	At      time.Time     `json:"at"`
	Summary model.Summary `json:"summary"`
}

// Importer runs the parse, consolidate, validate and reconcile pipeline for
// one uploaded file.
type Importer struct {
	Engine         *reconcile.Engine
	Batches        BatchRecorder
	Events         EventPublisher
	Archive        Archiver
	HeaderScanRows int
	Log            logrus.FieldLogger
}

func (imp *Importer) logger() logrus.FieldLogger {
	if imp.Log != nil {
		return imp.Log
	}
	return logrus.StandardLogger()
}

// Run imports one file. Structure and mode errors abort before anything is
// written; per-aggregate failures are reported inside the summary.
func (imp *Importer) Run(ctx context.Context, req ImportRequest) (model.Summary, error) {
	parser, err := parsers.ForProvider(req.Provider)
	if err != nil {
		return model.Summary{}, err
	}
	mode, err := parsers.ResolveMode(parser, req.Mode)
	if err != nil {
		return model.Summary{}, err
	}
	log := imp.logger().WithFields(logrus.Fields{
		"provider": req.Provider,
		"mode":     mode,
		"file":     req.FileName,
	})

	items, err := parser.Parse(req.Data, parsers.Options{
		Mode:           mode,
		HeaderScanRows: imp.HeaderScanRows,
		FileName:       req.FileName,
	})
	if err != nil {
		log.WithError(err).Warn("[IMPORT] file rejected")
		return model.Summary{}, err
	}

	aggs := reconcile.Consolidate(items)
	results := imp.Engine.Reconcile(ctx, req.Provider, aggs)

	summary := model.Summary{
		BatchID:   uuid.NewString(),
		Provider:  req.Provider,
		Mode:      string(mode),
		FileName:  req.FileName,
		LineItems: len(items),
		Details:   make([]model.Result, 0, len(results)),
	}
	for _, r := range results {
		summary.Tally(r)
	}

	if imp.Batches != nil {
		batch := model.Batch{
			ID:         summary.BatchID,
			Provider:   req.Provider,
			Mode:       summary.Mode,
			FileName:   req.FileName,
			FileHash:   req.Hash,
			LineItems:  summary.LineItems,
			Inserted:   summary.Inserted,
			Updated:    summary.Updated,
			Duplicates: summary.Duplicates,
			Denied:     summary.Denied,
			Errors:     summary.Errors,
			CreatedAt:  time.Now().UTC(),
		}
		if err := imp.Batches.RecordBatch(ctx, batch); err != nil {
			log.WithError(err).Error("[IMPORT] batch audit row not written")
		}
	}
	if imp.Archive != nil && req.Hash != "" {
		if key, err := imp.Archive.Store(ctx, string(req.Provider), req.FileName, req.Hash, req.Data); err != nil {
			log.WithError(err).Warn("[IMPORT] raw file archive failed")
		} else {
			log.WithField("object", key).Debug("[IMPORT] raw file archived")
		}
	}
	if imp.Events != nil {
		if err := imp.Events.Publish(ImportEvent{Type: "import", At: time.Now().UTC(), Summary: summary}); err != nil {
			log.WithError(err).Warn("[IMPORT] event not published")
		}
	}

	log.WithFields(logrus.Fields{
		"batch_id":   summary.BatchID,
		"items":      len(items),
		"aggregates": len(aggs),
		"inserted":   summary.Inserted,
		"updated":    summary.Updated,
		"duplicates": summary.Duplicates,
		"denied":     summary.Denied,
		"errors":     summary.Errors,
	}).Info("[IMPORT] completed")
	return summary, nil
}

// ModesOf lists the accepted modes per provider for the providers endpoint.
func ModesOf() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(model.Providers))
	for _, p := range model.Providers {
		parser, err := parsers.ForProvider(p)
		if err != nil {
			continue
		}
		info := ProviderInfo{Provider: p, Name: p.DisplayName(), NetsCard: p.NetsCardAgainstCash()}
		for _, m := range parser.Modes() {
			info.Modes = append(info.Modes, string(m))
		}
		info.DefaultMode = info.Modes[0]
		out = append(out, info)
	}
	return out
}

type ProviderInfo struct {
	Provider    model.Provider `json:"provider"`
	Name        string         `json:"name"`
	Modes       []string       `json:"modes"`
	DefaultMode string         `json:"default_mode"`
	NetsCard    bool           `json:"nets_card_against_cash"`
}
