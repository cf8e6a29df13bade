// Package rest is the HTTP client for the academy backend of record. It
// covers the assignment, record, and score-table collaborators; it owns no
// state beyond connection configuration.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/internal/domain/scoring"
)

const defaultTimeout = 10 * time.Second

// Client talks to the backend of record.
type Client struct {
	baseURL    string
	credential string
	timeout    time.Duration
	http       *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c
}

// wire types for the assignments endpoint

type wireInstructor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type wireStudent struct {
	StudentID        int64  `json:"student_id"`
	Name             string `json:"name"`
	Gender           string `json:"gender"`
	AttendanceStatus string `json:"attendance_status"`
}

type wireClass struct {
	ClassNum    int              `json:"class_num"`
	Instructors []wireInstructor `json:"instructors"`
	Students    []wireStudent    `json:"students"`
}

type wireSlot struct {
	Classes         []wireClass   `json:"classes"`
	WaitingStudents []wireStudent `json:"waitingStudents"`
}

type assignmentsResponse struct {
	Slots map[string]wireSlot `json:"slots"`
}

// Assignments fetches the authoritative assignment snapshot for a date.
func (c *Client) Assignments(ctx context.Context, date string) (model.AssignmentSnapshot, error) {
	var resp assignmentsResponse
	if err := c.get(ctx, "/assignments?date="+url.QueryEscape(date), &resp); err != nil {
		return model.AssignmentSnapshot{}, err
	}

	snap := model.AssignmentSnapshot{
		Date:  date,
		Slots: make(map[model.TimeSlot]model.SlotAssignments, len(resp.Slots)),
	}
	for name, ws := range resp.Slots {
		slot := model.SlotAssignments{}
		for _, wc := range ws.Classes {
			classNum := wc.ClassNum
			dc := model.ClassGroup{ClassNum: classNum}
			for _, wi := range wc.Instructors {
				dc.Instructors = append(dc.Instructors, model.Instructor{ID: wi.ID, Name: wi.Name})
			}
			for _, s := range wc.Students {
				dc.Students = append(dc.Students, toParticipant(s, &classNum))
			}
			slot.Classes = append(slot.Classes, dc)
		}
		for _, s := range ws.WaitingStudents {
			slot.Waiting = append(slot.Waiting, toParticipant(s, nil))
		}
		snap.Slots[model.TimeSlot(name)] = slot
	}
	return snap, nil
}

func toParticipant(s wireStudent, classNum *int) model.Participant {
	return model.Participant{
		ID:               model.StudentID(s.StudentID),
		Name:             s.Name,
		Gender:           model.Gender(s.Gender),
		ClassNum:         classNum,
		AttendanceStatus: s.AttendanceStatus,
	}
}

// wire types for the records endpoints

type wireRecord struct {
	StudentID    int64   `json:"student_id"`
	RecordTypeID int64   `json:"record_type_id"`
	Value        float64 `json:"value"`
}

type recordsByDateResponse struct {
	Records []wireRecord `json:"records"`
}

// RecordsByDate bulk-loads existing record entries for a roster and date.
// Only student identities are addressable here; applicant records live
// under their test session.
func (c *Client) RecordsByDate(ctx context.Context, date string, ids []model.ParticipantID) ([]model.RecordEntry, error) {
	csv := make([]string, 0, len(ids))
	for _, id := range ids {
		if id.IsStudent() {
			csv = append(csv, strconv.FormatInt(id.N, 10))
		}
	}
	if len(csv) == 0 {
		return nil, nil
	}

	var resp recordsByDateResponse
	path := "/records/by-date?date=" + url.QueryEscape(date) + "&student_ids=" + strings.Join(csv, ",")
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	entries := make([]model.RecordEntry, 0, len(resp.Records))
	for _, r := range resp.Records {
		entries = append(entries, model.RecordEntry{
			Participant:  model.StudentID(r.StudentID),
			MetricTypeID: r.RecordTypeID,
			Value:        r.Value,
			MeasuredAt:   date,
		})
	}
	return entries, nil
}

// RecordValue is one measurement inside a save batch.
type RecordValue struct {
	RecordTypeID int64   `json:"record_type_id"`
	Value        float64 `json:"value"`
	Notes        *string `json:"notes"`
}

// SaveBatch is the body of a record save call. Token, when set, rides on
// the request as the X-Save-Token header so a save can be correlated
// across client logs and backend access logs.
type SaveBatch struct {
	Token       uuid.UUID
	Participant model.ParticipantID
	MeasuredAt  string
	Records     []RecordValue
}

type saveBatchBody struct {
	StudentID       *int64        `json:"student_id,omitempty"`
	TestApplicantID *int64        `json:"test_applicant_id,omitempty"`
	MeasuredAt      string        `json:"measured_at"`
	Records         []RecordValue `json:"records"`
}

func (b SaveBatch) body() saveBatchBody {
	wire := saveBatchBody{MeasuredAt: b.MeasuredAt, Records: b.Records}
	n := b.Participant.N
	if b.Participant.IsStudent() {
		wire.StudentID = &n
	} else {
		wire.TestApplicantID = &n
	}
	return wire
}

// SaveRecords persists daily measurements for one participant.
func (c *Client) SaveRecords(ctx context.Context, batch SaveBatch) error {
	return c.post(ctx, "/records/batch", batch.Token, batch.body())
}

// SaveSessionRecords persists measurements scoped to a monthly-test
// session; applicants are addressed by test_applicant_id.
func (c *Client) SaveSessionRecords(ctx context.Context, sessionID int64, batch SaveBatch) error {
	path := fmt.Sprintf("/test-sessions/%d/records/batch", sessionID)
	return c.post(ctx, path, batch.Token, batch.body())
}

type wireMetricType struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Active bool   `json:"is_active"`
}

type metricTypesResponse struct {
	RecordTypes []wireMetricType `json:"recordTypes"`
}

// MetricTypes lists the academy's active measured events.
func (c *Client) MetricTypes(ctx context.Context) ([]model.MetricType, error) {
	var resp metricTypesResponse
	if err := c.get(ctx, "/record-types", &resp); err != nil {
		return nil, err
	}
	types := make([]model.MetricType, 0, len(resp.RecordTypes))
	for _, t := range resp.RecordTypes {
		if !t.Active {
			continue
		}
		types = append(types, model.MetricType{ID: t.ID, Name: t.Name, Unit: t.Unit, Active: t.Active})
	}
	return types, nil
}

// wire types for the score-table endpoint

type wireScoreTable struct {
	RecordTypeID  int64  `json:"record_type_id"`
	Name          string `json:"name"`
	DecimalPlaces int    `json:"decimal_places"`
	Direction     string `json:"direction"`
}

type scoreTableResponse struct {
	ScoreTable *wireScoreTable      `json:"scoreTable"`
	Ranges     []scoring.ScoreRange `json:"ranges"`
}

// ScoreTableByType fetches the score table configured for a metric type.
// A metric without a table yields (nil, nil): scoring is simply unavailable
// for it, which is not an error.
func (c *Client) ScoreTableByType(ctx context.Context, metricTypeID int64) (*scoring.ScoreTable, error) {
	var resp scoreTableResponse
	path := fmt.Sprintf("/score-tables/by-type/%d", metricTypeID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	if resp.ScoreTable == nil {
		return nil, nil
	}
	return &scoring.ScoreTable{
		MetricTypeID:  resp.ScoreTable.RecordTypeID,
		Name:          resp.ScoreTable.Name,
		DecimalPlaces: resp.ScoreTable.DecimalPlaces,
		Direction:     scoring.Direction(resp.ScoreTable.Direction),
		Ranges:        resp.Ranges,
	}, nil
}

// get issues a GET and decodes a JSON body into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if c.baseURL == "" {
		return ErrNoBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Endpoint: path, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// post issues a POST with a JSON body and discards any response body.
func (c *Client) post(ctx context.Context, path string, token uuid.UUID, body interface{}) error {
	if c.baseURL == "" {
		return ErrNoBaseURL
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != uuid.Nil {
		req.Header.Set("X-Save-Token", token.String())
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Endpoint: path, Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
}
