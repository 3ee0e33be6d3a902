package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"vendstock/internal/core/id"
	"vendstock/internal/domain/restock"
)

// CompressionAlgo specifies how a journal payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// Event types written to the outbox.
const (
	EventMachineRestocked = "machine.restocked"
	EventVisitDue         = "visit.due"
)

const defaultCompressThreshold = 8 * 1024

// JournalEntry is one row of visit_journal.
type JournalEntry struct {
	ID                id.ID           `db:"id"`
	Number            string          `db:"number"`
	MachineID         id.ID           `db:"machine_id"`
	SessionID         id.ID           `db:"session_id"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CommittedAt       time.Time       `db:"committed_at"`
}

// RestockedEvent is the outbox payload announcing a committed visit.
type RestockedEvent struct {
	Number      string    `json:"number"`
	MachineID   id.ID     `json:"machineId"`
	Location    string    `json:"location"`
	Resolved    int       `json:"resolved"`
	Skipped     int       `json:"skipped"`
	NextVisit   string    `json:"nextVisit"`
	CommittedAt time.Time `json:"committedAt"`
}

// VisitDueEvent is the outbox payload announcing a machine that needs a visit.
type VisitDueEvent struct {
	MachineID   id.ID  `json:"machineId"`
	Location    string `json:"location"`
	NextVisit   string `json:"nextVisit"`
	DaysOverdue int    `json:"daysOverdue"`
}

// VisitJournal stores committed visits and queues a machine.restocked event
// in the caller's transaction.
type VisitJournal struct {
	txManager         *TxManager
	outbox            *OutboxPublisher
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ restock.Journal = (*VisitJournal)(nil)

// NewVisitJournal creates a journal. Snapshots larger than 8KB are zstd-compressed.
func NewVisitJournal(txManager *TxManager, outbox *OutboxPublisher) (*VisitJournal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &VisitJournal{
		txManager:         txManager,
		outbox:            outbox,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// RecordVisit implements restock.Journal. It must run inside a transaction.
func (j *VisitJournal) RecordVisit(ctx context.Context, v *restock.Visit) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal visit: %w", err)
	}

	entry := JournalEntry{
		ID:              id.New(),
		Number:          v.Number,
		MachineID:       v.MachineID,
		SessionID:       v.SessionID,
		CompressionAlgo: CompressionNone,
		CommittedAt:     v.CommittedAt,
	}
	j.encode(&entry, payload)

	_, err = j.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO visit_journal (
			id, number, machine_id, session_id,
			payload, payload_compressed, compression_algo, committed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID, entry.Number, entry.MachineID, entry.SessionID,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo, entry.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert visit journal: %w", err)
	}

	var nextVisit string
	if v.Live != nil {
		if d, ok := v.Live.NextVisit(); ok {
			nextVisit = d.String()
		}
	}
	return j.outbox.Publish(ctx, DomainEvent{
		AggregateType: "machine",
		AggregateID:   v.MachineID,
		EventType:     EventMachineRestocked,
		Payload: RestockedEvent{
			Number:      v.Number,
			MachineID:   v.MachineID,
			Location:    v.Location,
			Resolved:    len(v.Resolved),
			Skipped:     len(v.Skipped),
			NextVisit:   nextVisit,
			CommittedAt: v.CommittedAt,
		},
	})
}

// History returns the latest visits of a machine, newest first, with payloads decompressed.
func (j *VisitJournal) History(ctx context.Context, machineID id.ID, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT id, number, machine_id, session_id,
		       payload, payload_compressed, compression_algo, committed_at
		FROM visit_journal
		WHERE machine_id = $1
		ORDER BY committed_at DESC
		LIMIT $2
	`, machineID, limit)
	if err != nil {
		return nil, fmt.Errorf("query visit journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(
			&e.ID, &e.Number, &e.MachineID, &e.SessionID,
			&e.Payload, &e.PayloadCompressed, &e.CompressionAlgo, &e.CommittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan visit journal: %w", err)
		}
		if err := j.decode(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// encode stores payload inline, or zstd-compressed above the threshold.
func (j *VisitJournal) encode(e *JournalEntry, payload []byte) {
	if len(payload) > j.compressThreshold {
		e.PayloadCompressed = j.encoder.EncodeAll(payload, nil)
		e.CompressionAlgo = CompressionZstd
		return
	}
	e.Payload = payload
	e.CompressionAlgo = CompressionNone
}

func (j *VisitJournal) decode(e *JournalEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.PayloadCompressed) == 0 {
		return nil
	}
	raw, err := j.decoder.DecodeAll(e.PayloadCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress visit %s: %w", e.Number, err)
	}
	e.Payload = raw
	e.PayloadCompressed = nil
	return nil
}
