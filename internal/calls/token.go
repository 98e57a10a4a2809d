package calls

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"time"
)

var (
	ErrInvalidAppID  = errors.New("calls: app id required")
	ErrInvalidSecret = errors.New("calls: server secret must be 32 bytes")
	ErrInvalidUserID = errors.New("calls: user id required")
	ErrInvalidTTL    = errors.New("calls: token ttl must be positive")
)

const tokenVersion = "04"

// tokenInfo is the encrypted body of a token04.
type tokenInfo struct {
	AppID   uint32 `json:"app_id"`
	UserID  string `json:"user_id"`
	Nonce   int32  `json:"nonce"`
	Ctime   int64  `json:"ctime"`
	Expire  int64  `json:"expire"`
	Payload string `json:"payload"`
}

type roomPrivilege struct {
	RoomID       string         `json:"room_id"`
	Privilege    map[string]int `json:"privilege"`
	StreamIDList []string       `json:"stream_id_list"`
}

// RoomPayload grants login and publish rights for a single room.
func RoomPayload(roomID string) (string, error) {
	raw, err := json.Marshal(roomPrivilege{
		RoomID:    roomID,
		Privilege: map[string]int{"1": 1, "2": 1},
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// TokenBuilder issues ZEGOCLOUD token04 credentials.
type TokenBuilder struct {
	appID  uint32
	secret []byte
	now    func() time.Time
	rand   io.Reader
}

func NewTokenBuilder(appID uint32, secret string) *TokenBuilder {
	return &TokenBuilder{appID: appID, secret: []byte(secret), now: time.Now, rand: rand.Reader}
}

// Configured reports whether tokens can be issued.
func (b *TokenBuilder) Configured() bool {
	return b != nil && b.appID != 0 && len(b.secret) == 32
}

// Generate encrypts the token body with AES-CBC under the server secret and
// packs expire | len(iv) iv | len(ciphertext) ciphertext, big endian.
func (b *TokenBuilder) Generate(userID, payload string, ttl time.Duration) (string, time.Time, error) {
	switch {
	case b.appID == 0:
		return "", time.Time{}, ErrInvalidAppID
	case len(b.secret) != 32:
		return "", time.Time{}, ErrInvalidSecret
	case userID == "":
		return "", time.Time{}, ErrInvalidUserID
	case ttl <= 0:
		return "", time.Time{}, ErrInvalidTTL
	}

	nonce, err := rand.Int(b.rand, big.NewInt(math.MaxInt32))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("calls: nonce: %w", err)
	}
	now := b.now()
	expireAt := now.Add(ttl)
	info := tokenInfo{
		AppID:   b.appID,
		UserID:  userID,
		Nonce:   int32(nonce.Int64()),
		Ctime:   now.Unix(),
		Expire:  expireAt.Unix(),
		Payload: payload,
	}
	plain, err := json.Marshal(info)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("calls: marshal token: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(b.rand, iv); err != nil {
		return "", time.Time{}, fmt.Errorf("calls: iv: %w", err)
	}
	block, err := aes.NewCipher(b.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("calls: cipher: %w", err)
	}
	padded := pkcs5Pad(plain, block.BlockSize())
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, info.Expire)
	_ = binary.Write(&buf, binary.BigEndian, int16(len(iv)))
	buf.Write(iv)
	_ = binary.Write(&buf, binary.BigEndian, int16(len(encrypted)))
	buf.Write(encrypted)

	return tokenVersion + base64.StdEncoding.EncodeToString(buf.Bytes()), expireAt, nil
}

func pkcs5Pad(src []byte, blockSize int) []byte {
	n := blockSize - len(src)%blockSize
	return append(src, bytes.Repeat([]byte{byte(n)}, n)...)
}
