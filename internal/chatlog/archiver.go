package chatlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrArchiveDisabled is returned when no bucket is configured.
var ErrArchiveDisabled = errors.New("chatlog: archive not configured")

// S3API is the subset of the S3 client used by Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveRecord is the object written for one conversation day.
type ArchiveRecord struct {
	ConversationID string    `json:"conversation_id"`
	Day            string    `json:"day"`
	ArchivedAt     time.Time `json:"archived_at"`
	EntryCount     int       `json:"entry_count"`
	AnomalyCount   int       `json:"anomaly_count"`
	Entries        []Entry   `json:"entries"`
}

// Archiver copies a conversation day from a Store to S3.
type Archiver struct {
	store    Store
	bucket   string
	s3Client S3API
	logger   *slog.Logger
}

// NewArchiver returns an archiver; with an empty bucket it is disabled.
func NewArchiver(store Store, s3Client S3API, bucket string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, bucket: bucket, s3Client: s3Client, logger: logger}
}

func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != "" && a.s3Client != nil && a.store != nil
}

// ArchiveDay uploads every entry of the day and returns the object key.
func (a *Archiver) ArchiveDay(ctx context.Context, conversationID string, day time.Time) (string, error) {
	if !a.Enabled() {
		return "", ErrArchiveDisabled
	}
	entries, err := a.store.ListDay(ctx, conversationID, day)
	if err != nil {
		return "", fmt.Errorf("chatlog: load day for archive: %w", err)
	}

	record := ArchiveRecord{
		ConversationID: conversationID,
		Day:            day.UTC().Format("2006-01-02"),
		ArchivedAt:     time.Now().UTC(),
		EntryCount:     len(entries),
		Entries:        entries,
	}
	for _, e := range entries {
		if e.Verdict.IsAnomaly {
			record.AnomalyCount++
		}
	}
	if record.Entries == nil {
		record.Entries = []Entry{}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("chatlog: marshal archive record: %w", err)
	}

	d := day.UTC()
	key := fmt.Sprintf("chat-logs/%s/%d/%02d/%02d.json", conversationID, d.Year(), d.Month(), d.Day())
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("chatlog: s3 put %s: %w", key, err)
	}

	a.logger.Info("archived chat log day to S3",
		"conversation_id", conversationID,
		"s3_key", key,
		"entry_count", record.EntryCount,
		"anomaly_count", record.AnomalyCount,
	)
	return key, nil
}
