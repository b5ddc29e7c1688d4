package repository

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"support_chat/internal/config"
	"support_chat/internal/domain"
)

// artifactCodec сериализует снимок экспорта в файл артефакта и обратно
type artifactCodec interface {
	Format() string
	Encode(w io.Writer, snapshot *domain.ExportSnapshot) error
	Decode(r io.Reader) (*domain.ExportSnapshot, error)
}

func codecFor(format string) (artifactCodec, error) {
	switch format {
	case config.ExportFormatJSON:
		return jsonCodec{}, nil
	case config.ExportFormatXLSX:
		return xlsxCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

type jsonCodec struct{}

func (jsonCodec) Format() string { return config.ExportFormatJSON }

func (jsonCodec) Encode(w io.Writer, snapshot *domain.ExportSnapshot) error {
	// Без отступов: json.RawMessage деталей обращения должен сохраниться байт в байт
	return json.NewEncoder(w).Encode(snapshot)
}

func (jsonCodec) Decode(r io.Reader) (*domain.ExportSnapshot, error) {
	var snapshot domain.ExportSnapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode json artifact: %w", err)
	}
	return &snapshot, nil
}

const (
	sheetMessages = "Messages"
	sheetPayloads = "Payloads"
	sheetExport   = "Export"

	// Ячейка xlsx вмещает 32767 символов, base64 режется на куски
	payloadChunkSize = 32000

	payloadAttachment = "attachment"
	payloadIdentity   = "identity"
	payloadText       = "text"
	payloadFileName   = "file_name"
	payloadMimeType   = "mime_type"
	payloadDetails    = "inquiry_details"
)

var messageHeaders = []string{
	"ID", "Identity", "Origin", "Kind", "Text", "Timestamp",
	"Attachment File", "Attachment MIME", "Inquiry Type", "Inquiry Details",
}

type xlsxCodec struct{}

func (xlsxCodec) Format() string { return config.ExportFormatXLSX }

// payloadWriter пишет base64 значения на лист Payloads кусками по payloadChunkSize
type payloadWriter struct {
	f   *excelize.File
	row int
}

func (p *payloadWriter) write(id, field string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for chunk := 0; chunk*payloadChunkSize < len(encoded) || chunk == 0; chunk++ {
		end := min((chunk+1)*payloadChunkSize, len(encoded))
		if err := setRow(p.f, sheetPayloads, p.row,
			[]interface{}{id, field, strconv.Itoa(chunk), encoded[chunk*payloadChunkSize : end]}); err != nil {
			return err
		}
		p.row++
	}
	return nil
}

// writeText дублирует строку в base64, если в читаемой ячейке она не переживет round-trip
func (p *payloadWriter) writeText(id, field, value string) error {
	if cellSafe(value) {
		return nil
	}
	return p.write(id, field, []byte(value))
}

func (xlsxCodec) Encode(w io.Writer, snapshot *domain.ExportSnapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetMessages); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetPayloads); err != nil {
		return fmt.Errorf("create payloads sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetExport); err != nil {
		return fmt.Errorf("create export sheet: %w", err)
	}

	if err := setRow(f, sheetMessages, 1, toCells(messageHeaders)); err != nil {
		return err
	}
	if err := setRow(f, sheetPayloads, 1, []interface{}{"Message ID", "Field", "Chunk", "Data (base64)"}); err != nil {
		return err
	}

	payloads := &payloadWriter{f: f, row: 2}
	for i, m := range snapshot.Messages {
		row := []interface{}{
			m.ID, m.Identity, string(m.Origin), string(m.Kind), m.Text,
			m.Timestamp.UTC().Format(time.RFC3339Nano), "", "", "", "",
		}
		if err := payloads.writeText(m.ID, payloadIdentity, m.Identity); err != nil {
			return err
		}
		if err := payloads.writeText(m.ID, payloadText, m.Text); err != nil {
			return err
		}
		if a := m.Attachment; a != nil {
			row[6], row[7] = a.FileName, a.MimeType
			if err := payloads.write(m.ID, payloadAttachment, a.Data); err != nil {
				return err
			}
			if err := payloads.writeText(m.ID, payloadFileName, a.FileName); err != nil {
				return err
			}
			if err := payloads.writeText(m.ID, payloadMimeType, a.MimeType); err != nil {
				return err
			}
		}
		if ic := m.InquiryContext; ic != nil {
			row[8], row[9] = string(ic.Type), string(ic.Details)
			if err := payloads.writeText(m.ID, payloadDetails, string(ic.Details)); err != nil {
				return err
			}
		}
		if err := setRow(f, sheetMessages, i+2, row); err != nil {
			return err
		}
	}

	exportRows := [][]interface{}{{"Created At", snapshot.CreatedAt.UTC().Format(time.RFC3339Nano)}}
	for _, identity := range snapshot.Identities {
		row := []interface{}{"Identity", identity}
		if !cellSafe(identity) {
			row = append(row, base64.StdEncoding.EncodeToString([]byte(identity)))
		}
		exportRows = append(exportRows, row)
	}
	for i, row := range exportRows {
		if err := setRow(f, sheetExport, i+1, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func (xlsxCodec) Decode(r io.Reader) (*domain.ExportSnapshot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx artifact: %w", err)
	}
	defer f.Close()

	snapshot := &domain.ExportSnapshot{Messages: make([]*domain.ChatMessage, 0)}

	exportRows, err := f.GetRows(sheetExport)
	if err != nil {
		return nil, fmt.Errorf("read export sheet: %w", err)
	}
	for _, row := range exportRows {
		switch cell(row, 0) {
		case "Created At":
			if snapshot.CreatedAt, err = time.Parse(time.RFC3339Nano, cell(row, 1)); err != nil {
				return nil, fmt.Errorf("parse export time: %w", err)
			}
		case "Identity":
			identity := cell(row, 1)
			if encoded := cell(row, 2); encoded != "" {
				raw, err := base64.StdEncoding.DecodeString(encoded)
				if err != nil {
					return nil, fmt.Errorf("decode export identity: %w", err)
				}
				identity = string(raw)
			}
			snapshot.Identities = append(snapshot.Identities, identity)
		}
	}

	payloads, err := readPayloads(f)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheetMessages)
	if err != nil {
		return nil, fmt.Errorf("read messages sheet: %w", err)
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		id := cell(row, 0)
		m := &domain.ChatMessage{
			ID:     id,
			Origin: domain.Origin(cell(row, 2)),
			Kind:   domain.MessageKind(cell(row, 3)),
		}
		if m.Identity, err = payloads.text(id, payloadIdentity, cell(row, 1)); err != nil {
			return nil, err
		}
		if m.Text, err = payloads.text(id, payloadText, cell(row, 4)); err != nil {
			return nil, err
		}
		if m.Timestamp, err = time.Parse(time.RFC3339Nano, cell(row, 5)); err != nil {
			return nil, fmt.Errorf("parse timestamp of message %s: %w", id, err)
		}
		if payloads.has(id, payloadAttachment) {
			a := &domain.Attachment{}
			if a.Data, err = payloads.bytes(id, payloadAttachment); err != nil {
				return nil, err
			}
			if a.FileName, err = payloads.text(id, payloadFileName, cell(row, 6)); err != nil {
				return nil, err
			}
			if a.MimeType, err = payloads.text(id, payloadMimeType, cell(row, 7)); err != nil {
				return nil, err
			}
			m.Attachment = a
		}
		if inquiryType := cell(row, 8); inquiryType != "" {
			m.InquiryContext = &domain.InquiryContext{Type: domain.InquiryType(inquiryType)}
			details, err := payloads.text(id, payloadDetails, cell(row, 9))
			if err != nil {
				return nil, err
			}
			if details != "" {
				m.InquiryContext.Details = json.RawMessage(details)
			}
		}
		snapshot.Messages = append(snapshot.Messages, m)
	}
	return snapshot, nil
}

// payloadIndex - склеенный base64 по (id сообщения, поле)
type payloadIndex map[string]map[string]string

// readPayloads собирает куски листа Payloads; куски одного поля идут по порядку
func readPayloads(f *excelize.File) (payloadIndex, error) {
	rows, err := f.GetRows(sheetPayloads)
	if err != nil {
		return nil, fmt.Errorf("read payloads sheet: %w", err)
	}
	parts := make(map[string]map[string]*strings.Builder)
	for i, row := range rows {
		if i == 0 {
			continue
		}
		id, field := cell(row, 0), cell(row, 1)
		fields, ok := parts[id]
		if !ok {
			fields = make(map[string]*strings.Builder)
			parts[id] = fields
		}
		b, ok := fields[field]
		if !ok {
			b = &strings.Builder{}
			fields[field] = b
		}
		b.WriteString(cell(row, 3))
	}
	index := make(payloadIndex, len(parts))
	for id, fields := range parts {
		index[id] = make(map[string]string, len(fields))
		for field, b := range fields {
			index[id][field] = b.String()
		}
	}
	return index, nil
}

func (p payloadIndex) has(id, field string) bool {
	_, ok := p[id][field]
	return ok
}

func (p payloadIndex) bytes(id, field string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p[id][field])
	if err != nil {
		return nil, fmt.Errorf("decode %s of message %s: %w", field, id, err)
	}
	return data, nil
}

// text отдает base64-копию поля, если она есть, иначе значение читаемой ячейки
func (p payloadIndex) text(id, field, fallback string) (string, error) {
	if !p.has(id, field) {
		return fallback, nil
	}
	data, err := p.bytes(id, field)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// cellSafe сообщает, вернет ли excelize строку из ячейки без изменений.
// Последовательности _xHHHH_ при чтении раскодируются, управляющие символы
// и \r не переживают XML, U+FFFD может означать битый UTF-8.
func cellSafe(s string) bool {
	if strings.Contains(s, "_x") || strings.Contains(s, "_X") {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n':
		case r < 0x20 || r == 0x7f || r == 0xfffe || r == 0xffff || r == utf8.RuneError:
			return false
		}
	}
	return true
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// GetRows отбрасывает пустые ячейки в конце строки
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
