package room

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/example/study-rooms/domain/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNickname(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"trimmed", "  Alice  ", "Alice", nil},
		{"unicode", "Zoë 学生", "Zoë 学生", nil},
		{"empty", "", "", ErrNicknameEmpty},
		{"whitespace", " \t ", "", ErrNicknameEmpty},
		{"at limit", strings.Repeat("é", MaxNicknameLength), strings.Repeat("é", MaxNicknameLength), nil},
		{"over limit", strings.Repeat("a", MaxNicknameLength+1), "", ErrNicknameTooLong},
		{"invalid utf8", "bad\xffname", "", ErrInvalidCharacter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateNickname(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRoomName(t *testing.T) {
	_, err := ValidateRoomName("")
	assert.ErrorIs(t, err, ErrRoomNameEmpty)

	_, err = ValidateRoomName(strings.Repeat("r", MaxRoomNameLength+1))
	assert.ErrorIs(t, err, ErrRoomNameTooLong)

	got, err := ValidateRoomName(" Calculus ")
	require.NoError(t, err)
	assert.Equal(t, "Calculus", got)
}

func TestValidateTopic(t *testing.T) {
	got, err := ValidateTopic("")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTopic, got)

	got, err = ValidateTopic("   ")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTopic, got)

	got, err = ValidateTopic(" Organic Chemistry ")
	require.NoError(t, err)
	assert.Equal(t, "Organic Chemistry", got)

	_, err = ValidateTopic(strings.Repeat("t", MaxTopicLength+1))
	assert.ErrorIs(t, err, ErrTopicTooLong)
}

func TestValidateMessage(t *testing.T) {
	_, err := ValidateMessage("  ")
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = ValidateMessage(strings.Repeat("m", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	got, err := ValidateMessage(strings.Repeat("m", MaxMessageLength))
	require.NoError(t, err)
	assert.Len(t, got, MaxMessageLength)
}

func TestDecodePayload(t *testing.T) {
	var p ChatMessagePayload
	require.NoError(t, decodePayload(nil, &p))
	require.NoError(t, decodePayload([]byte("null"), &p))
	assert.Empty(t, p.Text)

	err := decodePayload([]byte(`{"text":12}`), &p)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Invalid message format", perr.Message)
}

func TestCodeGenerator(t *testing.T) {
	gen, err := NewCodeGenerator()
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		code := gen()
		assert.Len(t, code, domain.CodeLength)
		assert.True(t, IsValidRoomCode(code), "invalid code %q", code)
	}
}

func TestIsValidRoomCode(t *testing.T) {
	assert.True(t, IsValidRoomCode("ABC123"))
	assert.True(t, IsValidRoomCode("000000"))
	assert.False(t, IsValidRoomCode("abc123"))
	assert.False(t, IsValidRoomCode("ABC12"))
	assert.False(t, IsValidRoomCode("ABC1234"))
	assert.False(t, IsValidRoomCode("ABC-12"))
	assert.False(t, IsValidRoomCode(""))
}

func TestRoomLocks_SerializesSameRoom(t *testing.T) {
	locks := newRoomLocks()
	var inside, maxInside int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("ROOM01")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locks.size())
}

func TestRoomLocks_IndependentRooms(t *testing.T) {
	locks := newRoomLocks()
	unlockA := locks.Lock("AAAAAA")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("BBBBBB")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another room blocked")
	}
	assert.Equal(t, 1, locks.size())
}

func TestRoomLocks_LockAllOppositeOrderDoesNotDeadlock(t *testing.T) {
	locks := newRoomLocks()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locks.LockAll("AAAAAA", "BBBBBB")
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := locks.LockAll("BBBBBB", "AAAAAA")
			unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("LockAll deadlocked")
	}
	assert.Equal(t, 0, locks.size())
}

func TestRoomLocks_LockAllSkipsEmptyAndDuplicates(t *testing.T) {
	locks := newRoomLocks()
	unlock := locks.LockAll("AAAAAA", "", "AAAAAA")
	assert.Equal(t, 1, locks.size())
	unlock()
	assert.Equal(t, 0, locks.size())
}
