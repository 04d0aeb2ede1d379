// Package audit produces tamper-evident records of pipeline runs. Entries
// carry one-way hashes of the note and response plus an HMAC signature; raw
// clinical text never reaches a store. The log is append-only — nothing in
// this service updates or deletes entries, retention is an external policy.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"clinsight/models"
)

// Store is an append-only audit sink. Implementations must never expose
// update or delete operations.
type Store interface {
	Append(ctx context.Context, entry models.AuditEntry) error
}

// Writer assembles, signs and persists audit entries. The signing key is
// read-only after construction.
type Writer struct {
	store     Store
	key       []byte
	logger    *log.Logger
	onFailure func(error)
}

// NewWriter builds a Writer. onFailure is invoked (if non-nil) when the store
// rejects an append, in addition to logging; callers use it to count
// failures.
func NewWriter(store Store, signingKey []byte, logger *log.Logger, onFailure func(error)) *Writer {
	if logger == nil {
		logger = log.New(log.Writer(), "[AUDIT] ", log.LstdFlags)
	}
	return &Writer{store: store, key: signingKey, logger: logger, onFailure: onFailure}
}

// Record creates a signed entry for one completed (or rejected) request and
// persists it. A persistence failure is logged and reported through the
// failure hook but never propagated: the audit write must not block the
// response to the caller.
func (w *Writer) Record(ctx context.Context, requestID, inputText string, output interface{}, modelVersion string, latencyMS int64, hallucinationAlert bool) models.AuditEntry {
	entry := models.AuditEntry{
		Timestamp:          time.Now().UTC(),
		RequestID:          requestID,
		RequestHash:        hashText(inputText),
		ResponseHash:       hashPayload(output),
		ModelVersion:       modelVersion,
		LatencyMS:          latencyMS,
		HallucinationAlert: hallucinationAlert,
	}
	entry.Signature = w.Sign(entry)

	if err := w.store.Append(ctx, entry); err != nil {
		w.logger.Printf("audit append failed for request %s: %v", requestID, err)
		if w.onFailure != nil {
			w.onFailure(err)
		}
	}
	return entry
}

// Sign computes the HMAC-SHA256 signature over the entry's non-sensitive
// fields.
func (w *Writer) Sign(entry models.AuditEntry) string {
	mac := hmac.New(sha256.New, w.key)
	mac.Write([]byte(signingPayload(entry)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the entry's signature matches its fields under the
// writer's key.
func (w *Writer) Verify(entry models.AuditEntry) bool {
	expected := w.Sign(entry)
	return hmac.Equal([]byte(expected), []byte(entry.Signature))
}

func signingPayload(entry models.AuditEntry) string {
	return strings.Join([]string{
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.RequestID,
		entry.RequestHash,
		entry.ResponseHash,
		entry.ModelVersion,
		strconv.FormatInt(entry.LatencyMS, 10),
		strconv.FormatBool(entry.HallucinationAlert),
	}, "|")
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func hashPayload(payload interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Marshal of our own response types cannot fail; hash the error text
		// rather than dropping the field.
		raw = []byte(fmt.Sprintf("marshal error: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
