package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/chatwire/internal/models"
)

func TestDecode(t *testing.T) {
	chatID := uuid.New()
	callID := uuid.New()
	receiver := uuid.New()

	tests := []struct {
		name    string
		raw     string
		want    Command
		wantErr error
	}{
		{
			name: "join-chat bare id",
			raw:  `{"event":"join-chat","data":"` + chatID.String() + `"}`,
			want: JoinChat{ChatID: chatID},
		},
		{
			name: "join-chat object",
			raw:  `{"event":"join-chat","data":{"chatId":"` + chatID.String() + `"}}`,
			want: JoinChat{ChatID: chatID},
		},
		{
			name: "typing start",
			raw:  `{"event":"typing:start","data":{"chatId":"` + chatID.String() + `"}}`,
			want: StartTyping{ChatID: chatID},
		},
		{
			name: "messages-read",
			raw:  `{"event":"messages-read","data":{"chatId":"` + chatID.String() + `"}}`,
			want: MarkRead{ChatID: chatID},
		},
		{
			name: "call start",
			raw:  `{"event":"call:start","data":{"receiverId":"` + receiver.String() + `","type":"video"}}`,
			want: StartCall{ReceiverID: receiver, Type: models.CallVideo},
		},
		{
			name: "call mute",
			raw:  `{"event":"call:mute","data":{"callId":"` + callID.String() + `"}}`,
			want: CallAction{Action: CmdCallMute, CallID: callID},
		},
		{
			name:    "unknown event",
			raw:     `{"event":"drop-tables","data":{}}`,
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "missing chat id",
			raw:     `{"event":"leave-chat","data":{}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "malformed uuid",
			raw:     `{"event":"join-chat","data":"not-a-uuid"}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "call without id",
			raw:     `{"event":"call:end","data":{}}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "not json",
			raw:     `hello`,
			wantErr: ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	chatID := uuid.New()
	reader := uuid.New()

	b, err := Encode(MessagesRead{ChatID: chatID, ReaderID: reader})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var got struct {
		Event string `json:"event"`
		Data  struct {
			ChatID   uuid.UUID `json:"chatId"`
			ReaderID uuid.UUID `json:"readerId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if got.Event != NameMessagesRead {
		t.Errorf("event = %q, want %q", got.Event, NameMessagesRead)
	}
	if got.Data.ChatID != chatID || got.Data.ReaderID != reader {
		t.Errorf("data = %+v", got.Data)
	}
}

func TestCallSignalName(t *testing.T) {
	ev := CallSignal{Kind: NameCallUserMuted, CallID: uuid.New(), UserID: uuid.New()}
	b, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["event"] != NameCallUserMuted {
		t.Errorf("event = %v, want %s", got["event"], NameCallUserMuted)
	}
	data := got["data"].(map[string]any)
	if _, ok := data["Kind"]; ok {
		t.Error("Kind must not be serialized")
	}
}

func TestEventName(t *testing.T) {
	if got := EventName([]byte(`{"event":"call:start","data":5}`)); got != "call:start" {
		t.Errorf("EventName() = %q", got)
	}
	if got := EventName([]byte(`garbage`)); got != "" {
		t.Errorf("EventName() = %q, want empty", got)
	}
}
