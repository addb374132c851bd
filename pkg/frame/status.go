package frame

import "strconv"

// Status is the status code carried by an error frame.
type Status uint8

const (
	StatusNoErrors           Status = 0
	StatusProcessingError    Status = 1
	StatusMissingDeviceToken Status = 2
	StatusMissingTopic       Status = 3
	StatusMissingPayload     Status = 4
	StatusInvalidTokenSize   Status = 5
	StatusInvalidTopicSize   Status = 6
	StatusInvalidPayloadSize Status = 7
	StatusInvalidToken       Status = 8
	StatusShutdown           Status = 10
	StatusUnknown            Status = 255
)

var statusNames = map[Status]string{
	StatusNoErrors:           "no errors",
	StatusProcessingError:    "processing error",
	StatusMissingDeviceToken: "missing device token",
	StatusMissingTopic:       "missing topic",
	StatusMissingPayload:     "missing payload",
	StatusInvalidTokenSize:   "invalid token size",
	StatusInvalidTopicSize:   "invalid topic size",
	StatusInvalidPayloadSize: "invalid payload size",
	StatusInvalidToken:       "invalid token",
	StatusShutdown:           "shutdown",
	StatusUnknown:            "unknown",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}
