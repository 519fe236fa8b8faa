package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestQRService_GenerateStaticQR(t *testing.T) {
	service := NewQRService(nil, nil)

	image, err := service.GenerateStaticQR("jane4821.campus")
	assert.NoError(t, err)

	// Base64 PNG, decodable and non-trivial.
	raw, err := base64.StdEncoding.DecodeString(image)
	assert.NoError(t, err)
	assert.Greater(t, len(raw), 100)
}

func TestQRService_DynamicQR(t *testing.T) {
	t.Run("generate stores token in redis", func(t *testing.T) {
		client, redisMock := redismock.NewClientMock()
		service := NewQRService(nil, client)

		redisMock.Regexp().ExpectSet(`qr:.+`, `.+`, QRTokenTTL).SetVal("OK")

		token, image, err := service.GenerateDynamicQR(context.Background(), QRPayload{
			UserID: 4,
			Amount: 2500,
		})
		assert.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.NotEmpty(t, image)

		// The token itself decodes to the payload handed to the payer app.
		raw, err := base64.URLEncoding.DecodeString(token)
		assert.NoError(t, err)

		var payload QRPayload
		assert.NoError(t, json.Unmarshal(raw, &payload))
		assert.Equal(t, int64(4), payload.UserID)
		assert.Equal(t, int64(2500), payload.Amount)
		assert.NotEmpty(t, payload.Nonce)

		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("resolve consumes the token", func(t *testing.T) {
		client, redisMock := redismock.NewClientMock()
		service := NewQRService(nil, client)

		stored, _ := json.Marshal(QRPayload{UserID: 4, Amount: 2500, Nonce: "n1"})
		token := base64.URLEncoding.EncodeToString(stored)

		redisMock.ExpectGet("qr:" + token).SetVal(string(stored))
		redisMock.ExpectDel("qr:" + token).SetVal(1)

		payload, err := service.ResolveQR(context.Background(), token)
		assert.NoError(t, err)
		assert.Equal(t, int64(4), payload.UserID)
		assert.Equal(t, int64(2500), payload.Amount)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("expired token", func(t *testing.T) {
		client, redisMock := redismock.NewClientMock()
		service := NewQRService(nil, client)

		redisMock.ExpectGet("qr:gone").RedisNil()

		_, err := service.ResolveQR(context.Background(), "gone")
		assert.ErrorIs(t, err, ErrQRInvalid)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
