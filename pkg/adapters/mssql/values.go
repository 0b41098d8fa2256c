package mssql

import (
	"encoding/binary"
	"strconv"

	"github.com/google/uuid"
)

// normalize converts MS SQL specific binary values:
// UNIQUEIDENTIFIER to canonical UUID text, TIMESTAMP/ROWVERSION to hex,
// DECIMAL/MONEY to float64.
func normalize(dbType string, value any) any {
	data, ok := value.([]byte)
	if !ok {
		return value
	}
	switch dbType {
	case "UNIQUEIDENTIFIER":
		if id, err := uniqueIdentifier(data); err == nil {
			return id.String()
		}
	case "TIMESTAMP", "ROWVERSION":
		return rowVersionHex(data)
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		if f, err := strconv.ParseFloat(string(data), 64); err == nil {
			return f
		}
	}
	return value
}

// uniqueIdentifier converts SQL Server GUID bytes to uuid.UUID.
// The first three groups are stored little-endian.
func uniqueIdentifier(data []byte) (uuid.UUID, error) {
	if len(data) != 16 {
		return uuid.FromBytes(data)
	}
	b := make([]byte, 16)
	copy(b, data)
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]
	return uuid.FromBytes(b)
}

// rowVersionHex converts 8-byte big-endian rowversion to hex without leading zeros.
//
// Examples:
//   - []byte{0x00, 0x00, 0x00, 0x00, 0x18, 0x7F, 0x86, 0x3C} → "187F863C"
//   - []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00} → "00"
func rowVersionHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) != 8 {
		return "00"
	}

	value := binary.BigEndian.Uint64(data)
	if value == 0 {
		return "00"
	}

	const hexChars = "0123456789ABCDEF"
	var result [16]byte
	pos := 16
	for value > 0 {
		pos--
		result[pos] = hexChars[value&0x0F]
		value >>= 4
	}
	return string(result[pos:])
}
