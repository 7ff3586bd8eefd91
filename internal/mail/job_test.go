package mail

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var queuedAt = time.Date(2025, 10, 5, 9, 30, 0, 123000000, time.UTC)

func sampleJobs() []Job {
	return []Job{
		NotificationJob{
			FirstName: "Jane", LastName: "Doe", Email: "jane@example.com",
			Message: "Hi\nthere", Lang: "en", IP: "203.0.113.7",
			Subject: "Contact Form: Collaboration", Text: "text", HTML: "<p>html</p>",
			QueuedAt: queuedAt,
		},
		AutoReplyJob{
			ToEmail: "jane@example.com", Subject: "Thanks for reaching out! Jane!",
			Text: "t", HTML: "<p>h</p>", FirstName: "Jane", LastName: "Doe", Lang: "en",
			QueuedAt: queuedAt,
		},
		UnknownJob{Raw: json.RawMessage(`{"foo":1}`)},
	}
}

func TestQueueRoundTrip(t *testing.T) {
	jobs := sampleJobs()

	data, err := MarshalQueue(jobs)
	require.NoError(t, err)

	decoded, err := UnmarshalQueue(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(jobs))
	assert.Equal(t, jobs, decoded)
}

func TestEncodeWireShape(t *testing.T) {
	raw, err := EncodeJob(sampleJobs()[0])
	require.NoError(t, err)

	var item map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &item))
	assert.JSONEq(t, `"notification"`, string(item["type"]))
	assert.JSONEq(t, `"2025-10-05T09:30:00.123Z"`, string(item["queuedAt"]))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(item["payload"], &payload))
	assert.Equal(t, "jane@example.com", payload["email"])
	assert.Equal(t, "203.0.113.7", payload["ip"])
}

func TestDecodeUnknownShapes(t *testing.T) {
	cases := map[string]string{
		"missing type":     `{"queuedAt":"2025-10-05T09:30:00Z","payload":{"email":"x@y.z"}}`,
		"unrecognised":     `{"type":"sms","payload":{}}`,
		"payload string":   `{"type":"notification","payload":"nope"}`,
		"payload bad type": `{"type":"autoresponder","payload":{"toEmail":42}}`,
		"not an object":    `"just a string"`,
		"number":           `7`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			job := DecodeJob(json.RawMessage(raw))
			unknown, ok := job.(UnknownJob)
			require.True(t, ok, "got %T", job)
			assert.Equal(t, raw, string(unknown.Raw))

			again, err := EncodeJob(job)
			require.NoError(t, err)
			assert.Equal(t, raw, string(again))
		})
	}
}

func TestDecodeKeepsQueuedAtFromOlderFormats(t *testing.T) {
	job := DecodeJob(json.RawMessage(`{"type":"autoresponder","queuedAt":"2025-10-05T09:30:00Z","payload":{"toEmail":"a@b.c","subject":"s","text":"t","html":"h"}}`))
	ar, ok := job.(AutoReplyJob)
	require.True(t, ok)
	assert.True(t, ar.QueuedAt.Equal(time.Date(2025, 10, 5, 9, 30, 0, 0, time.UTC)))

	ts, ok := QueuedAt(job)
	assert.True(t, ok)
	assert.Equal(t, ar.QueuedAt, ts)
	assert.Equal(t, "a@b.c", Recipient(job))
}

func TestSplitQueue(t *testing.T) {
	items, err := SplitQueue(nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = SplitQueue([]byte(`{"type":"notification"}`))
	assert.ErrorIs(t, err, ErrNotArray)

	data, err := JoinQueue(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	items, err = SplitQueue([]byte("[\n  {\n    \"type\": \"x\",\n    \"payload\": { \"a\": 1 }\n  }\n]"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, `{"type":"x","payload":{"a":1}}`, string(items[0]))
}
