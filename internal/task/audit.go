package task

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// hashTimeLayout fixes the timestamp representation inside the hash payload so
// a round trip through any store reproduces the same digest.
const hashTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Metadata keys of assigned entries. The creation entry and every
// reassignment record the parties in force from that entry on.
const (
	MetaAssignee           = "assignee"
	MetaValidators         = "validators"
	MetaPreviousAssignee   = "previous_assignee"
	MetaPreviousValidators = "previous_validators"
)

// hashPayload is the canonical, ordered form of an entry that gets hashed.
// Hash itself is excluded.
type hashPayload struct {
	ID              string            `json:"id"`
	TaskID          string            `json:"task_id"`
	Sequence        int64             `json:"sequence"`
	ActionType      string            `json:"action_type"`
	PerformedBy     string            `json:"performed_by"`
	PerformedAt     string            `json:"performed_at"`
	FromStatus      string            `json:"from_status"`
	ToStatus        string            `json:"to_status"`
	FileRef         string            `json:"file_ref"`
	FileName        string            `json:"file_name"`
	Comment         string            `json:"comment"`
	DecisionComment string            `json:"decision_comment"`
	Metadata        map[string]string `json:"metadata"`
	PrevHash        string            `json:"prev_hash"`
}

// HashEntry returns the hex SHA-256 digest of e's canonical payload.
func HashEntry(e domain.HistoryEntry) string {
	metadata := e.Metadata
	if len(metadata) == 0 {
		metadata = nil
	}
	payload := hashPayload{
		ID:              e.ID,
		TaskID:          e.TaskID,
		Sequence:        e.Sequence,
		ActionType:      e.ActionType.String(),
		PerformedBy:     e.PerformedBy,
		PerformedAt:     e.PerformedAt.UTC().Format(hashTimeLayout),
		FromStatus:      e.FromStatus.String(),
		ToStatus:        e.ToStatus.String(),
		FileRef:         e.FileRef,
		FileName:        e.FileName,
		Comment:         e.Comment,
		DecisionComment: e.DecisionComment,
		Metadata:        metadata,
		PrevHash:        e.PrevHash,
	}
	// Marshal cannot fail for this struct: strings, an int and a string map.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// chainEntry links e to the last entry of history: it assigns the next
// sequence number, copies the previous hash, clamps PerformedAt so the log
// never goes backwards in time, and seals e with its own hash.
func chainEntry(history []domain.HistoryEntry, e *domain.HistoryEntry) {
	e.Sequence = 1
	e.PrevHash = ""
	if n := len(history); n > 0 {
		last := history[n-1]
		e.Sequence = last.Sequence + 1
		e.PrevHash = last.Hash
		if e.PerformedAt.Before(last.PerformedAt) {
			e.PerformedAt = last.PerformedAt
		}
	}
	e.PerformedAt = e.PerformedAt.UTC()
	e.Hash = HashEntry(*e)
}

// VerifyHistory checks that history is an untampered chain for taskID:
// contiguous sequence numbers from 1, each PrevHash equal to the previous
// Hash, every Hash matching its payload, non-decreasing PerformedAt, and each
// entry's FromStatus equal to the previous ToStatus along a legal edge.
// Reassignment entries are assigned entries that keep the status unchanged.
func VerifyHistory(taskID string, history []domain.HistoryEntry) error {
	var prevHash string
	var prevAt time.Time
	var prevStatus constants.TaskStatus

	for i, e := range history {
		want := int64(i + 1)
		switch {
		case e.TaskID != taskID:
			return tampered(taskID, want, "belongs to task %q", e.TaskID)
		case e.Sequence != want:
			return tampered(taskID, want, "has sequence %d", e.Sequence)
		case e.PrevHash != prevHash:
			return tampered(taskID, want, "does not link to its predecessor")
		case e.Hash != HashEntry(e):
			return tampered(taskID, want, "content does not match its hash")
		case i > 0 && e.PerformedAt.Before(prevAt):
			return tampered(taskID, want, "is older than its predecessor")
		}

		switch {
		case i == 0:
			if e.ActionType != constants.ActionAssigned || e.ToStatus != constants.TaskStatusAssigned {
				return tampered(taskID, want, "is not the creation entry")
			}
		case e.ActionType == constants.ActionAssigned:
			if e.FromStatus != prevStatus || e.ToStatus != prevStatus || IsTerminalStatus(prevStatus) {
				return tampered(taskID, want, "records a reassignment that moves status %s -> %s", e.FromStatus, e.ToStatus)
			}
		case e.FromStatus != prevStatus || !IsValidTransition(e.FromStatus, e.ToStatus):
			return tampered(taskID, want, "records illegal edge %s -> %s", e.FromStatus, e.ToStatus)
		}

		prevHash = e.Hash
		prevAt = e.PerformedAt
		prevStatus = e.ToStatus
	}
	return nil
}

// assignmentMetadata records next's parties, and prev's when prev is not nil.
func assignmentMetadata(prev, next *domain.Task) map[string]string {
	md := map[string]string{
		MetaAssignee:   next.Assignee,
		MetaValidators: encodeValidators(next.Validators),
	}
	if prev != nil {
		md[MetaPreviousAssignee] = prev.Assignee
		md[MetaPreviousValidators] = encodeValidators(prev.Validators)
	}
	return md
}

func encodeValidators(validators []string) string {
	if validators == nil {
		validators = []string{}
	}
	// Marshal cannot fail for a string slice.
	data, _ := json.Marshal(validators)
	return string(data)
}

// VerifyParties checks t's assignee and validators against the last assigned
// entry of history that records them. Histories without such an entry pass.
func VerifyParties(t *domain.Task, history []domain.HistoryEntry) error {
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.ActionType != constants.ActionAssigned {
			continue
		}
		assignee, ok := e.Metadata[MetaAssignee]
		if !ok {
			continue
		}
		if assignee != t.Assignee || e.Metadata[MetaValidators] != encodeValidators(t.Validators) {
			return fmt.Errorf("%w: task %q parties differ from those recorded by entry %d",
				reviewerrors.ErrHistoryTampered, t.ID, e.Sequence)
		}
		return nil
	}
	return nil
}

func tampered(taskID string, seq int64, format string, args ...any) error {
	return fmt.Errorf("%w: task %q entry %d %s", reviewerrors.ErrHistoryTampered, taskID, seq, fmt.Sprintf(format, args...))
}
