package job

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BranchIntl/bullworker/errors"
)

// MaxFailedReasonLength bounds the failedReason field written to the store
const MaxFailedReasonLength = 1000

// Codec converts between job hashes and Jobs
type Codec struct {
	useNumber bool
}

// NewCodec creates a new codec
func NewCodec() *Codec {
	return &Codec{}
}

// UseNumber returns whether numbers decode as json.Number
func (c *Codec) UseNumber() bool {
	return c.useNumber
}

// SetUseNumber sets whether numbers decode as json.Number
func (c *Codec) SetUseNumber(useNumber bool) {
	c.useNumber = useNumber
}

// FromHash builds a Job from the fields of its hash. The payload must decode
// to a JSON object; a missing data field is treated as an empty payload.
func (c *Codec) FromHash(id string, fields map[string]string) (*Job, error) {
	if len(fields) == 0 {
		return nil, errors.ErrJobNotFound
	}

	j := &Job{
		ID:      id,
		State:   StateUnknown,
		Payload: Payload{},
	}

	if raw, ok := fields[FieldData]; ok && raw != "" {
		payload, err := c.decodeObject(raw)
		if err != nil {
			return nil, errors.NewSerializationError(FieldData, err)
		}
		j.Payload = payload
	}

	j.Type = fields[FieldType]
	if j.Type == "" {
		j.Type = j.Payload.String(FieldType)
	}

	j.Progress = parseProgress(fields[FieldProgress])
	j.FailedReason = fields[FieldFailedReason]
	j.ProcessedOn = parseMillis(fields[FieldProcessedOn])
	j.FinishedOn = parseMillis(fields[FieldFinishedOn])

	if raw, ok := fields[FieldReturnValue]; ok && raw != "" && raw != "null" {
		rv, err := c.decodeObject(raw)
		if err != nil {
			return nil, errors.NewSerializationError(FieldReturnValue, err)
		}
		j.ReturnValue = rv
	}

	return j, nil
}

// EncodeResult serializes a result record for the returnvalue field
func (c *Codec) EncodeResult(result Result) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", errors.NewSerializationError(FieldReturnValue, err)
	}
	return string(data), nil
}

func (c *Codec) decodeObject(raw string) (map[string]interface{}, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	if c.useNumber {
		decoder.UseNumber()
	}

	var obj map[string]interface{}
	if err := decoder.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", errors.ErrMalformedJob)
	}
	return obj, nil
}

// parseProgress accepts the integer form workers write. Producers may store
// richer JSON progress objects; those read as zero.
func parseProgress(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseMillis(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// FailureReason renders err as a failedReason value
func FailureReason(err error) string {
	if err == nil {
		return "unknown error"
	}
	reason := strings.ToValidUTF8(strings.TrimSpace(err.Error()), "\uFFFD")
	if reason == "" {
		reason = "unknown error"
	}
	if len(reason) <= MaxFailedReasonLength {
		return reason
	}
	cut := MaxFailedReasonLength
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
