package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"boardsync/domain"
)

// Top-level hash fields. Map-valued sections use dotted sub-paths so partial
// writes can address a single list, task sequence, or member.
const (
	fieldName       = "name"
	fieldColor      = "color"
	fieldOwner      = "owner"
	fieldOwnerEmail = "ownerEmail"
	fieldSettings   = "settings"
	fieldCreatedAt  = "createdAt"
	fieldUpdatedAt  = "updatedAt"

	prefixLists   = "lists."
	prefixTasks   = "tasks."
	prefixMembers = "members."
)

// ListPath is the sub-path addressing one list record.
func ListPath(listID string) string { return prefixLists + listID }

// TasksPath is the sub-path addressing one list's task sequence.
func TasksPath(listID string) string { return prefixTasks + listID }

// MemberPath is the sub-path addressing one member record.
func MemberPath(email string) string { return prefixMembers + email }

func encodeValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeFields(set map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(set))
	for path, v := range set {
		enc, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}
		out[path] = enc
	}
	return out, nil
}

// documentFields flattens a full document into its hash representation.
func documentFields(doc domain.Document) (map[string]string, error) {
	set := map[string]any{
		fieldName:       doc.Board.Name,
		fieldColor:      doc.Board.Color,
		fieldOwner:      doc.Board.Owner,
		fieldOwnerEmail: doc.Board.OwnerEmail,
		fieldSettings:   doc.Settings,
		fieldCreatedAt:  doc.Board.CreatedAt,
		fieldUpdatedAt:  doc.Board.UpdatedAt,
	}
	for id, l := range doc.Lists {
		set[ListPath(id)] = l
	}
	for id, seq := range doc.Tasks {
		set[TasksPath(id)] = seq
	}
	for email, m := range doc.Members {
		set[MemberPath(email)] = m
	}
	return encodeFields(set)
}

func decodeDocument(boardID string, raw map[string]string) (domain.Document, error) {
	doc := domain.Document{
		Board:   domain.Board{ID: boardID},
		Members: make(map[string]domain.Member),
		Lists:   make(map[string]domain.List),
		Tasks:   make(map[string][]domain.Task),
	}
	for field, value := range raw {
		var err error
		switch {
		case field == fieldName:
			err = json.Unmarshal([]byte(value), &doc.Board.Name)
		case field == fieldColor:
			err = json.Unmarshal([]byte(value), &doc.Board.Color)
		case field == fieldOwner:
			err = json.Unmarshal([]byte(value), &doc.Board.Owner)
		case field == fieldOwnerEmail:
			err = json.Unmarshal([]byte(value), &doc.Board.OwnerEmail)
		case field == fieldSettings:
			err = json.Unmarshal([]byte(value), &doc.Settings)
		case field == fieldCreatedAt:
			err = decodeTime(value, &doc.Board.CreatedAt)
		case field == fieldUpdatedAt:
			err = decodeTime(value, &doc.Board.UpdatedAt)
		case strings.HasPrefix(field, prefixLists):
			var l domain.List
			if err = json.Unmarshal([]byte(value), &l); err == nil {
				doc.Lists[strings.TrimPrefix(field, prefixLists)] = l
			}
		case strings.HasPrefix(field, prefixTasks):
			var seq []domain.Task
			if err = json.Unmarshal([]byte(value), &seq); err == nil {
				doc.Tasks[strings.TrimPrefix(field, prefixTasks)] = seq
			}
		case strings.HasPrefix(field, prefixMembers):
			var m domain.Member
			if err = json.Unmarshal([]byte(value), &m); err == nil {
				doc.Members[strings.TrimPrefix(field, prefixMembers)] = m
			}
		default:
			// Unknown fields are tolerated so older clients survive schema growth.
		}
		if err != nil {
			return domain.Document{}, fmt.Errorf("decode %s: %w", field, err)
		}
	}
	return doc, nil
}

func decodeTime(value string, dst *time.Time) error {
	return json.Unmarshal([]byte(value), dst)
}
