// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Voltforge

package espboot

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// StubBlob is an unpacked stub loader image: two sections to place in chip
// RAM and the address to jump to. The engine only uploads and jumps; the
// contents are opaque.
type StubBlob struct {
	Entry     uint32
	TextStart uint32
	DataStart uint32
	Text      []byte
	Data      []byte
}

// stubDocument is the JSON packaging of a stub image as shipped by
// esptool: integer addresses plus base64-encoded sections.
type stubDocument struct {
	Entry     uint32 `json:"entry"`
	TextStart uint32 `json:"text_start"`
	DataStart uint32 `json:"data_start"`
	Text      string `json:"text"`
	Data      string `json:"data"`
}

// ParseStubBlob decodes the JSON stub packaging.
func ParseStubBlob(raw []byte) (*StubBlob, error) {
	var doc stubDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("stub blob: %w", err)
	}
	text, err := base64.StdEncoding.DecodeString(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("stub blob text section: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("stub blob data section: %w", err)
	}
	return &StubBlob{
		Entry:     doc.Entry,
		TextStart: doc.TextStart,
		DataStart: doc.DataStart,
		Text:      text,
		Data:      data,
	}, nil
}
