package stats

import (
	"encoding/json"
	"runtime"
)

// Driver names the transport that delivered a job.
type Driver string

const (
	DriverSync       Driver = "sync"
	DriverDatabase   Driver = "database"
	DriverBeanstalkd Driver = "beanstalkd"
	DriverRedis      Driver = "redis"
	DriverSQS        Driver = "sqs"
	DriverMemory     Driver = "memory"
)

// DefaultDrivers are the drivers whose events are recorded when no
// allow-list is configured.
var DefaultDrivers = []Driver{DriverBeanstalkd, DriverDatabase, DriverRedis}

// JobInfo describes the job an event refers to.
type JobInfo struct {
	// UUID is the explicit job identity. When empty the identity is
	// recovered from Payload.
	UUID string

	// Name is the declared handler name, matched against the payload's
	// commandName.
	Name string

	Driver     Driver
	Connection string
	Queue      string

	// Attempts is the 1-based attempt number reported by the driver.
	Attempts int

	// Payload is the raw serialized job as it sits on the queue.
	Payload json.RawMessage

	// Handler is a value of the declared handler type. It is used only for
	// capability checks and as the decode target for Payload.
	Handler any
}

// Frame is one entry of a captured call stack.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Exception carries the diagnostics of a failed attempt.
type Exception struct {
	Message string
	Trace   []Frame
}

// CaptureException builds an Exception from err with the caller's stack.
// skip has the same meaning as for runtime.Callers, relative to the caller.
func CaptureException(err error, skip int) Exception {
	ex := Exception{}
	if err != nil {
		ex.Message = err.Error()
	}

	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		ex.Trace = append(ex.Trace, Frame{Function: f.Function, File: f.File, Line: f.Line})
		if !more {
			break
		}
	}
	return ex
}

// BeforeExecute is emitted immediately before a handler runs.
type BeforeExecute struct {
	Job JobInfo
}

// AfterExecute is emitted when a handler returned without error.
type AfterExecute struct {
	Job JobInfo
}

// ExceptionOccurred is emitted when a handler failed and the job will be
// retried.
type ExceptionOccurred struct {
	Job       JobInfo
	Exception Exception
}

// FinalFailure is emitted when a job has exhausted its attempts.
type FinalFailure struct {
	Job       JobInfo
	Exception Exception
}

// Payload is the serialized form of a queued job.
type Payload struct {
	UUID        string      `json:"uuid"`
	DisplayName string      `json:"displayName"`
	Job         string      `json:"job"`
	MaxTries    int         `json:"maxTries"`
	Data        PayloadData `json:"data"`
}

// PayloadData holds the handler name and its serialized fields.
type PayloadData struct {
	CommandName string          `json:"commandName"`
	Command     json.RawMessage `json:"command"`
}
