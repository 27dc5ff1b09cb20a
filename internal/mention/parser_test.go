package mention

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	req := require.New(t)

	t.Run("extracts tokens in first occurrence order", func(t *testing.T) {
		tokens := Parse("@alice saw @bob and @alice again")
		req.Equal([]string{"alice", "bob"}, tokens)
	})

	t.Run("no tokens", func(t *testing.T) {
		req.Empty(Parse("no mentions here"))
	})

	t.Run("case sensitive dedup", func(t *testing.T) {
		tokens := Parse("@Alice and @alice")
		req.Equal([]string{"Alice", "alice"}, tokens)
	})

	t.Run("token stops at non word character", func(t *testing.T) {
		tokens := Parse("hey @bob, ping @carol!")
		req.Equal([]string{"bob", "carol"}, tokens)
	})

	t.Run("bare at sign is not a token", func(t *testing.T) {
		req.Empty(Parse("meet @ noon"))
	})

	t.Run("underscores and digits are word characters", func(t *testing.T) {
		tokens := Parse("@user_1 @user2")
		req.Equal([]string{"user_1", "user2"}, tokens)
	})
}
