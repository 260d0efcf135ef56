package flash

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret-at-least-16-chars!!", false)
	require.NoError(t, err)
	return c
}

func TestNewCodec_ShortSecret(t *testing.T) {
	_, err := NewCodec("short", false)
	assert.Error(t, err)
}

func TestSetThenPop(t *testing.T) {
	c := newTestCodec(t)

	rec := httptest.NewRecorder()
	require.NoError(t, c.Set(rec, NewSuccess("Username updated.")))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}

	rec2 := httptest.NewRecorder()
	got := c.Pop(rec2, req)
	require.NotNil(t, got)
	assert.Equal(t, Success, got.Type)
	assert.Equal(t, "Username updated.", got.Message)

	// Pop clears the cookie so the message shows once.
	cleared := rec2.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "flash", cleared[0].Name)
	assert.True(t, cleared[0].MaxAge < 0)
}

func TestSet_Nil(t *testing.T) {
	c := newTestCodec(t)
	rec := httptest.NewRecorder()

	require.NoError(t, c.Set(rec, nil))
	assert.Empty(t, rec.Result().Cookies())
}

func TestPop_NoCookie(t *testing.T) {
	c := newTestCodec(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Nil(t, c.Pop(httptest.NewRecorder(), req))
}

func TestPop_ForgedCookie(t *testing.T) {
	c := newTestCodec(t)
	other, _ := NewCodec("another-secret-of-16-chars", false)

	value, err := other.Encode(Flash{Type: Error, Message: "forged"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "flash", Value: value})

	assert.Nil(t, c.Pop(httptest.NewRecorder(), req))
}

func TestDecode_UnknownType(t *testing.T) {
	c := newTestCodec(t)

	value, err := c.Encode(Flash{Type: "info", Message: "x"})
	require.NoError(t, err)

	_, err = c.Decode(value)
	assert.Error(t, err)
}
