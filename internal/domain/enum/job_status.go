package enum

import (
	"database/sql/driver"
	"encoding/json"
)

// JobStatus represents the status of a print job
type JobStatus int

const (
	JobStatusQueued       JobStatus = 0
	JobStatusInFlight     JobStatus = 1
	JobStatusSucceeded    JobStatus = 2
	JobStatusFailed       JobStatus = 3
	JobStatusDeadLettered JobStatus = 4
)

func (s JobStatus) String() string {
	return [...]string{"Queued", "InFlight", "Succeeded", "Failed", "DeadLettered"}[s]
}

// Terminal reports whether the job has reached a final status. DeadLettered
// is not terminal: it waits for an operator to retry or void the job.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		// Try unmarshaling as int
		var i int
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		*s = JobStatus(i)
		return nil
	}
	switch str {
	case "Queued":
		*s = JobStatusQueued
	case "InFlight":
		*s = JobStatusInFlight
	case "Succeeded":
		*s = JobStatusSucceeded
	case "Failed":
		*s = JobStatusFailed
	case "DeadLettered":
		*s = JobStatusDeadLettered
	}
	return nil
}

func (s JobStatus) Value() (driver.Value, error) {
	return int64(s), nil
}

func (s *JobStatus) Scan(value interface{}) error {
	if value == nil {
		*s = JobStatusQueued
		return nil
	}
	switch v := value.(type) {
	case int64:
		*s = JobStatus(v)
	case int:
		*s = JobStatus(v)
	}
	return nil
}
