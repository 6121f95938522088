package evm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"perp-stats/internal/domain"
)

// Trading contract event signatures. key, user and productId are indexed.
const (
	SigPositionUpdated = "PositionUpdated(bytes32,address,bytes32,address,bool,uint256,uint256,uint256,uint256)"
	SigClosePosition   = "ClosePosition(bytes32,address,bytes32,address,uint256,uint256,uint256,uint256,int256,bool)"
)

var (
	// TopicPositionUpdated is topic0 of PositionUpdated logs.
	TopicPositionUpdated = EventTopic(SigPositionUpdated)
	// TopicClosePosition is topic0 of ClosePosition logs.
	TopicClosePosition = EventTopic(SigClosePosition)
)

// ErrUnknownEvent is returned for logs that are not Trading events.
var ErrUnknownEvent = errors.New("unknown event")

// ErrMalformedLog is returned when topics or data do not fit the event layout.
var ErrMalformedLog = errors.New("malformed log")

const wordSize = 32

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// Keccak256 hashes data with legacy Keccak-256.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// EventTopic returns the 0x-prefixed topic hash of an event signature.
func EventTopic(signature string) string {
	return "0x" + hex.EncodeToString(Keccak256([]byte(signature)))
}

// TradingTopics returns the topic0 filter matching both Trading events.
func TradingTopics() [][]string {
	return [][]string{{TopicPositionUpdated, TopicClosePosition}}
}

// DecodeLog decodes a Trading contract log.
func DecodeLog(l Log) (domain.TradingEvent, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("log %s:%d has no topics: %w", l.TxHash, l.LogIndex, ErrUnknownEvent)
	}
	meta := domain.EventMeta{
		Contract:    l.Address,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.LogIndex,
	}

	switch strings.ToLower(l.Topics[0]) {
	case TopicPositionUpdated:
		return decodePositionUpdated(meta, l)
	case TopicClosePosition:
		return decodeClosePosition(meta, l)
	}
	return nil, fmt.Errorf("topic %s: %w", l.Topics[0], ErrUnknownEvent)
}

func decodePositionUpdated(meta domain.EventMeta, l Log) (*domain.PositionUpdated, error) {
	words, err := dataWords(l, 6)
	if err != nil {
		return nil, fmt.Errorf("PositionUpdated: %w", err)
	}
	key, user, product, err := indexed(l)
	if err != nil {
		return nil, fmt.Errorf("PositionUpdated: %w", err)
	}

	return &domain.PositionUpdated{
		EventMeta: meta,
		Key:       key,
		User:      user,
		ProductID: product,
		Currency:  wordAddress(words[0]),
		IsLong:    wordBool(words[1]),
		Price:     wordUint(words[2]),
		Margin:    wordUint(words[3]),
		Size:      wordUint(words[4]),
		Fee:       wordUint(words[5]),
	}, nil
}

func decodeClosePosition(meta domain.EventMeta, l Log) (*domain.ClosePosition, error) {
	words, err := dataWords(l, 7)
	if err != nil {
		return nil, fmt.Errorf("ClosePosition: %w", err)
	}
	key, user, product, err := indexed(l)
	if err != nil {
		return nil, fmt.Errorf("ClosePosition: %w", err)
	}

	return &domain.ClosePosition{
		EventMeta:     meta,
		Key:           key,
		User:          user,
		ProductID:     product,
		Currency:      wordAddress(words[0]),
		Price:         wordUint(words[1]),
		Margin:        wordUint(words[2]),
		Size:          wordUint(words[3]),
		Fee:           wordUint(words[4]),
		Pnl:           wordInt(words[5]),
		WasLiquidated: wordBool(words[6]),
	}, nil
}

// indexed decodes the key, user and productId topics.
func indexed(l Log) (key, user, product string, err error) {
	if len(l.Topics) != 4 {
		return "", "", "", fmt.Errorf("%d topics, want 4: %w", len(l.Topics), ErrMalformedLog)
	}
	var words [3][]byte
	for i := range words {
		words[i], err = decodeHex(l.Topics[i+1])
		if err != nil || len(words[i]) != wordSize {
			return "", "", "", fmt.Errorf("topic %d: %w", i+1, ErrMalformedLog)
		}
	}
	return "0x" + hex.EncodeToString(words[0]), wordAddress(words[1]), DecodeProductID(words[2]), nil
}

func dataWords(l Log, n int) ([][]byte, error) {
	data, err := decodeHex(l.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", ErrMalformedLog)
	}
	if len(data) != n*wordSize {
		return nil, fmt.Errorf("data is %d bytes, want %d: %w", len(data), n*wordSize, ErrMalformedLog)
	}
	words := make([][]byte, n)
	for i := range words {
		words[i] = data[i*wordSize : (i+1)*wordSize]
	}
	return words, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

func wordUint(w []byte) *big.Int {
	return new(big.Int).SetBytes(w)
}

// wordInt reads a two's complement int256.
func wordInt(w []byte) *big.Int {
	v := new(big.Int).SetBytes(w)
	if w[0]&0x80 != 0 {
		v.Sub(v, twoTo256)
	}
	return v
}

func wordBool(w []byte) bool {
	return w[wordSize-1] != 0
}

func wordAddress(w []byte) string {
	return ChecksumAddress(hex.EncodeToString(w[wordSize-20:]))
}

// DecodeProductID renders a bytes32 product id as its ASCII name with
// trailing zero bytes removed. Ids that are not printable ASCII stay hex.
func DecodeProductID(w []byte) string {
	end := len(w)
	for end > 0 && w[end-1] == 0 {
		end--
	}
	for _, b := range w[:end] {
		if b < 0x20 || b > 0x7e {
			return "0x" + hex.EncodeToString(w)
		}
	}
	return string(w[:end])
}

// ChecksumAddress renders a hex address in EIP-55 mixed case.
func ChecksumAddress(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"))
	hash := hex.EncodeToString(Keccak256([]byte(lower)))

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && i < len(hash) && hash[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}
