package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMediaRefKinds(t *testing.T) {
	require.Equal(t, MediaInline, MediaRef{URI: "data:image/png;base64,AAAA"}.Kind())
	require.Equal(t, MediaCache, MediaRef{URI: "media://1_a.png"}.Kind())
	require.Equal(t, MediaExternal, MediaRef{URI: "https://example.com/a.png"}.Kind())
	require.Equal(t, MediaInvalid, MediaRef{URI: "file:///etc/passwd"}.Kind())
}

func TestMediaRefUnmarshalLegacyString(t *testing.T) {
	var msg Message
	raw := `{"role":"user","content":"hi","attachments":["media://1_a.mp4","data:image/webp;base64,AAAA",{"uri":"https://x/y.jpg?sig=1"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	require.Equal(t, []MediaRef{
		{URI: "media://1_a.mp4", MIMEType: "video/mp4"},
		{URI: "data:image/webp;base64,AAAA", MIMEType: "image/webp"},
		{URI: "https://x/y.jpg?sig=1", MIMEType: "image/jpeg"},
	}, msg.Attachments)
}

func TestTitleFrom(t *testing.T) {
	require.Equal(t, "New chat", TitleFrom("   "))
	require.Equal(t, "short", TitleFrom("short"))
	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	require.Equal(t, long[:30], TitleFrom(long))
	require.Equal(t, "héllo wörld", TitleFrom("héllo\nwörld"))
}

func TestNormalizeRole(t *testing.T) {
	require.Equal(t, RoleModel, NormalizeRole("assistant"))
	require.Equal(t, RoleModel, NormalizeRole("model"))
	require.Equal(t, RoleUser, NormalizeRole("user"))
}
