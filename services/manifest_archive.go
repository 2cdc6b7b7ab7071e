package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/zstd"

	"bounty-challenge-system/bounty"
	"bounty-challenge-system/utils"
)

// ManifestArchive wraps a Settler and uploads every settled manifest to object
// storage as zstd-compressed JSON. Upload failures are logged; they never fail
// a settlement that already went through.
type ManifestArchive struct {
	next    bounty.Settler
	store   utils.ObjectPutter
	bucket  string
	log     *slog.Logger
	clock   clockwork.Clock
	encoder *zstd.Encoder
}

var _ bounty.Settler = (*ManifestArchive)(nil)

// ArchivedManifest is the stored document.
type ArchivedManifest struct {
	Request    bounty.SettlementRequest `json:"request"`
	Receipt    bounty.SettlementReceipt `json:"receipt"`
	ArchivedAt time.Time                `json:"archived_at"`
}

func NewManifestArchive(next bounty.Settler, store utils.ObjectPutter, bucket string, log *slog.Logger, clock clockwork.Clock) (*ManifestArchive, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ManifestArchive{next: next, store: store, bucket: bucket, log: log, clock: clock, encoder: enc}, nil
}

func (a *ManifestArchive) Settle(ctx context.Context, req bounty.SettlementRequest) (*bounty.SettlementReceipt, error) {
	receipt, err := a.next.Settle(ctx, req)
	if err != nil {
		return nil, err
	}
	key, err := a.archive(ctx, req, *receipt)
	if err != nil {
		a.log.Error("archive: manifest upload failed", "challenge_id", req.ChallengeID, "tx_hash", receipt.TxHash, "error", err)
	} else {
		a.log.Debug("archive: manifest uploaded", "challenge_id", req.ChallengeID, "key", key)
	}
	return receipt, nil
}

// ObjectKey is where the manifest for a settlement is stored.
func ObjectKey(challengeID, idempotencyKey string) string {
	return fmt.Sprintf("settlements/%s/%s.json.zst", challengeID, idempotencyKey)
}

func (a *ManifestArchive) archive(ctx context.Context, req bounty.SettlementRequest, receipt bounty.SettlementReceipt) (string, error) {
	doc, err := json.Marshal(ArchivedManifest{Request: req, Receipt: receipt, ArchivedAt: a.clock.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	compressed := a.encoder.EncodeAll(doc, make([]byte, 0, len(doc)/2))

	key := ObjectKey(req.ChallengeID, req.IdempotencyKey)
	_, err = a.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(compressed),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("zstd"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return key, nil
}

// DecodeArchivedManifest reverses the archive encoding.
func DecodeArchivedManifest(data []byte) (*ArchivedManifest, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress manifest: %w", err)
	}
	var out ArchivedManifest
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &out, nil
}
