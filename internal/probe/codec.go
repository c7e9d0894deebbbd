package probe

import (
	"fmt"
	"time"

	"Go2NetPulse/internal/model"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeRecord serializes a PacketRecord to a protobuf Struct.
func EncodeRecord(r model.PacketRecord) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"timestamp":   r.Timestamp.UTC().Format(time.RFC3339Nano),
		"source_ip":   r.SourceIP,
		"dest_ip":     r.DestIP,
		"source_port": float64(r.SourcePort),
		"dest_port":   float64(r.DestPort),
		"protocol":    r.Protocol,
		"size":        float64(r.Size),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build record struct: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(data []byte) (model.PacketRecord, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return model.PacketRecord{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	f := s.GetFields()
	ts, err := time.Parse(time.RFC3339Nano, f["timestamp"].GetStringValue())
	if err != nil {
		return model.PacketRecord{}, fmt.Errorf("invalid record timestamp: %w", err)
	}
	return model.PacketRecord{
		Timestamp:  ts,
		SourceIP:   f["source_ip"].GetStringValue(),
		DestIP:     f["dest_ip"].GetStringValue(),
		SourcePort: uint16(f["source_port"].GetNumberValue()),
		DestPort:   uint16(f["dest_port"].GetNumberValue()),
		Protocol:   f["protocol"].GetStringValue(),
		Size:       int(f["size"].GetNumberValue()),
	}, nil
}
