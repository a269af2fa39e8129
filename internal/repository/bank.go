package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
	"go.uber.org/multierr"
)

const (
	RawBankKey = keyPrefix + "questions:raw"
	BankKey    = keyPrefix + "questions"
)

// RawQuestion is the authoring format of the bank. Answer is either an
// option letter (A, B, ...) or the literal text of the correct option.
type RawQuestion struct {
	ID          string   `json:"id"`
	Q           string   `json:"q"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Seconds     int      `json:"seconds"`
	Category    string   `json:"category"`
	Explanation string   `json:"explanation"`
}

func correctIndex(options []string, answer string) (int, error) {
	answer = strings.TrimSpace(answer)
	if len(answer) == 1 {
		c := strings.ToUpper(answer)[0]
		if c >= 'A' && int(c-'A') < len(options) {
			return int(c - 'A'), nil
		}
	}
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), answer) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("answer %q matches no option", answer)
}

// NormalizeBank converts raw questions to the dispatch format. Invalid
// entries are skipped and reported in the returned error; the valid ones
// are still returned.
func NormalizeBank(raw []RawQuestion) ([]engine.Question, error) {
	out := make([]engine.Question, 0, len(raw))
	var errs error
	for n, rq := range raw {
		id := strings.TrimSpace(rq.ID)
		if id == "" {
			id = fmt.Sprintf("q-%d", n+1)
		}
		text := strings.TrimSpace(rq.Q)
		if text == "" {
			errs = multierr.Append(errs, fmt.Errorf("question %s: empty text", id))
			continue
		}
		if len(rq.Options) < 2 {
			errs = multierr.Append(errs, fmt.Errorf("question %s: need at least 2 options", id))
			continue
		}
		idx, err := correctIndex(rq.Options, rq.Answer)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("question %s: %w", id, err))
			continue
		}

		limit := engine.TimePerQuestionMsRange.Default
		if rq.Seconds > 0 {
			limit = rq.Seconds * 1000
		}
		out = append(out, engine.Question{
			ID:           id,
			Question:     text,
			Answers:      append([]string(nil), rq.Options...),
			CorrectIndex: idx,
			TimeLimitMs:  limit,
			Category:     rq.Category,
			Explanation:  rq.Explanation,
		})
	}
	return out, errs
}

// Bank stores the shared question bank in both formats.
type Bank struct {
	store store.Store
}

func NewBank(s store.Store) *Bank {
	return &Bank{store: s}
}

// Import normalizes raw and writes both keys. It returns how many
// questions were stored; skipped entries are logged.
func (b *Bank) Import(ctx context.Context, raw []RawQuestion) (int, error) {
	questions, errs := NormalizeBank(raw)
	for _, err := range multierr.Errors(errs) {
		logger.Warn("skipping question", "error", err)
	}

	rawData, err := json.Marshal(raw)
	if err != nil {
		return 0, fmt.Errorf("encode raw bank: %w", err)
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return 0, fmt.Errorf("encode bank: %w", err)
	}

	if err := b.store.Set(ctx, RawBankKey, rawData, 0); err != nil {
		return 0, mapErr("save_raw_bank", "", err)
	}
	if err := b.store.Set(ctx, BankKey, data, 0); err != nil {
		return 0, mapErr("save_bank", "", err)
	}
	return len(questions), nil
}

// Questions returns the normalized bank. A missing or unreadable bank is
// reported as empty.
func (b *Bank) Questions(ctx context.Context) []engine.Question {
	item, err := b.store.Get(ctx, BankKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		logger.Warn("question bank unavailable", "error", err)
		return nil
	}
	var questions []engine.Question
	if err := json.Unmarshal(item.Value, &questions); err != nil {
		logger.Warn("question bank is malformed", "error", err)
		return nil
	}
	return questions
}

// Pick returns the question at idx in the bank (wrapping) and the index to
// use next time. An empty bank yields the built-in fallback question.
func Pick(bank []engine.Question, idx int) (engine.Question, int) {
	if len(bank) == 0 {
		bank = []engine.Question{engine.FallbackQuestion()}
	}
	i := idx % len(bank)
	if i < 0 {
		i += len(bank)
	}
	return bank[i], (i + 1) % len(bank)
}

// ParseRawBank decodes a raw bank file.
func ParseRawBank(data []byte) ([]RawQuestion, error) {
	var raw []RawQuestion
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse question file: %w", err)
	}
	return raw, nil
}

// importTimeout bounds a full bank import, which writes two keys.
const importTimeout = 10 * time.Second

// ImportFile is a convenience used at startup and by the seed command.
func (b *Bank) ImportFile(ctx context.Context, data []byte) (int, error) {
	raw, err := ParseRawBank(data)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, importTimeout)
	defer cancel()
	return b.Import(ctx, raw)
}
