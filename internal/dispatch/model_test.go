package dispatch

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipients_UnmarshalJSON(t *testing.T) {
	t.Run("single string", func(t *testing.T) {
		var r Recipients
		require.NoError(t, json.Unmarshal([]byte(`"5511999990001"`), &r))
		assert.Equal(t, Recipients{"5511999990001"}, r)
	})

	t.Run("list of strings", func(t *testing.T) {
		var r Recipients
		require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &r))
		assert.Equal(t, Recipients{"a", "b"}, r)
	})

	t.Run("number rejected", func(t *testing.T) {
		var r Recipients
		assert.Error(t, json.Unmarshal([]byte(`42`), &r))
	})
}

func TestOutcome_HTTPStatus(t *testing.T) {
	ok := &Outcome{Results: []Result{{Recipient: "a", Status: 200}}}
	assert.Equal(t, http.StatusOK, ok.HTTPStatus())

	partial := &Outcome{
		Results: []Result{{Recipient: "a", Status: 200}},
		Errors:  []Result{{Recipient: "b", Status: 400}},
	}
	assert.Equal(t, http.StatusMultiStatus, partial.HTTPStatus())

	allFailed := &Outcome{Errors: []Result{{Recipient: "b", Status: 500}}}
	assert.Equal(t, http.StatusMultiStatus, allFailed.HTTPStatus())
}
