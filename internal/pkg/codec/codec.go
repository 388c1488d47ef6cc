package codec

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/location-engine/internal/domain"
)

// tileRecord - хранимое представление ячейки: "x_y" -> {latitude, longitude, timestamp}
type tileRecord struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// TileSetCodec сериализует набор посещённых ячеек в JSON, сжатый zstd.
// Безопасен для конкурентного использования
type TileSetCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewTileSetCodec() (*TileSetCodec, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &TileSetCodec{encoder: encoder, decoder: decoder}, nil
}

func (c *TileSetCodec) Encode(tiles map[domain.TileKey]domain.VisitedTile) ([]byte, error) {
	records := make(map[string]tileRecord, len(tiles))
	for key, tile := range tiles {
		records[key.String()] = tileRecord{
			Latitude:  tile.Center.Latitude,
			Longitude: tile.Center.Longitude,
			Timestamp: tile.FirstVisit,
		}
	}

	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal tile set: %w", err)
	}
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode восстанавливает набор. Пустые данные - пустой набор
func (c *TileSetCodec) Decode(data []byte) (map[domain.TileKey]domain.VisitedTile, error) {
	tiles := make(map[domain.TileKey]domain.VisitedTile)
	if len(data) == 0 {
		return tiles, nil
	}

	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress tile set: %w", err)
	}

	var records map[string]tileRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("unmarshal tile set: %w", err)
	}

	for s, rec := range records {
		key, err := domain.ParseTileKey(s)
		if err != nil {
			return nil, err
		}
		tiles[key] = domain.VisitedTile{
			Key:        key,
			Center:     domain.Coordinate{Latitude: rec.Latitude, Longitude: rec.Longitude},
			FirstVisit: rec.Timestamp,
		}
	}
	return tiles, nil
}

func (c *TileSetCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// EncodeMembership сериализует состояние "внутри/снаружи" по зонам
func EncodeMembership(state domain.MembershipState) ([]byte, error) {
	raw := make(map[string]bool, len(state))
	for zoneID, inside := range state {
		raw[zoneID.String()] = inside
	}
	return json.Marshal(raw)
}

func DecodeMembership(data []byte) (domain.MembershipState, error) {
	state := make(domain.MembershipState)
	if len(data) == 0 {
		return state, nil
	}
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal membership: %w", err)
	}
	for s, inside := range raw {
		zoneID, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("membership zone id %q: %w", s, err)
		}
		state[zoneID] = inside
	}
	return state, nil
}
