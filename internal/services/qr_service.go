package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// QRTokenTTL bounds how long a dynamic payment QR stays payable.
const QRTokenTTL = 5 * time.Minute

var ErrQRInvalid = fmt.Errorf("invalid or expired QR code")

// QRPayload is what a scanned payment QR resolves to.
type QRPayload struct {
	UserID    int64  `json:"userId,omitempty"`
	StoreID   int64  `json:"storeId,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// QRService produces receive QR codes. Static codes carry just the payee
// handle; dynamic codes carry an amount and a nonce, live in redis and
// resolve exactly once.
type QRService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewQRService(db *sql.DB, redis *redis.Client) *QRService {
	return &QRService{
		db:    db,
		redis: redis,
	}
}

// GenerateStaticQR renders a permanent receive code for a payment handle.
func (s *QRService) GenerateStaticQR(paymentHandle string) (string, error) {
	return renderQRImage(fmt.Sprintf("campuspay://pay/%s", paymentHandle))
}

// GenerateDynamicQR creates a single-use payment token with an optional
// pinned amount and stores it in redis under a short TTL.
func (s *QRService) GenerateDynamicQR(ctx context.Context, payload QRPayload) (string, string, error) {
	payload.Timestamp = time.Now().Unix()
	payload.Nonce = generateNonce()

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	token := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:%s", token)
	if err := s.redis.Set(ctx, key, jsonData, QRTokenTTL).Err(); err != nil {
		return "", "", err
	}

	qrImage, err := renderQRImage(token)
	if err != nil {
		return "", "", err
	}

	return token, qrImage, nil
}

// ResolveQR consumes a dynamic token. The redis delete makes each token
// payable at most once.
func (s *QRService) ResolveQR(ctx context.Context, token string) (*QRPayload, error) {
	key := fmt.Sprintf("qr:%s", token)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrQRInvalid
	}
	if err != nil {
		return nil, err
	}

	var payload QRPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrQRInvalid
	}

	s.redis.Del(ctx, key)

	return &payload, nil
}

func renderQRImage(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
