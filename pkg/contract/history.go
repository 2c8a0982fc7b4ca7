package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// HistoryRow is one immutable contract transition record. Rows are hash
// chained to their predecessor; the chain is the sole source of truth for
// how a contract reached its current state.
type HistoryRow struct {
	ID         string         `json:"id"`
	ContractID string         `json:"contract_id"`
	Sequence   uint64         `json:"sequence"`
	PrevState  State          `json:"estado_anterior"`
	NewState   State          `json:"estado_novo"`
	Reason     string         `json:"reason,omitempty"`
	Actor      string         `json:"actor"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	PrevHash    string `json:"prev_hash"`
	ContentHash string `json:"content_hash"`
}

// genesisHash anchors the first row of every contract's chain.
const genesisHash = "genesis"

// rowDigest computes the content hash over the row's canonical JSON form,
// excluding the content hash itself.
func rowDigest(row *HistoryRow) (string, error) {
	shadow := *row
	shadow.ContentHash = ""
	raw, err := json.Marshal(&shadow)
	if err != nil {
		return "", fmt.Errorf("contract: marshal history row: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("contract: canonicalize history row: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Chain links row onto prev (nil for the first transition), filling in
// sequence and hashes. The engine calls this so every store persists
// identical chains.
func Chain(prev, row *HistoryRow) error {
	if prev == nil {
		row.Sequence = 1
		row.PrevHash = genesisHash
	} else {
		row.Sequence = prev.Sequence + 1
		row.PrevHash = prev.ContentHash
	}
	digest, err := rowDigest(row)
	if err != nil {
		return err
	}
	row.ContentHash = digest
	return nil
}

// Replay walks the rows in order from Draft and returns the resulting state.
// It fails if any row's previous state disagrees with the replayed state, so
// a gap or reordering in history cannot go unnoticed.
func Replay(rows []HistoryRow) (State, error) {
	state := StateDraft
	for i, row := range rows {
		if row.PrevState != state {
			return state, fmt.Errorf("contract: history row %d expects previous state %s, replay is at %s", i+1, row.PrevState, state)
		}
		state = row.NewState
	}
	return state, nil
}

// VerifyChain checks the hash chain and sequence numbering of a contract's
// full history.
func VerifyChain(rows []HistoryRow) error {
	prevHash := genesisHash
	for i, row := range rows {
		if row.Sequence != uint64(i)+1 {
			return fmt.Errorf("contract: history row %d has sequence %d", i+1, row.Sequence)
		}
		if row.PrevHash != prevHash {
			return fmt.Errorf("contract: chain broken at row %d", i+1)
		}
		digest, err := rowDigest(&row)
		if err != nil {
			return err
		}
		if digest != row.ContentHash {
			return fmt.Errorf("contract: hash mismatch at row %d", i+1)
		}
		prevHash = row.ContentHash
	}
	return nil
}
