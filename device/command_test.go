package device

import "testing"

func TestRegistryAssignsSequentialIDs(t *testing.T) {
	reg := NewRegistry()

	first := reg.RegisterResponse("first_response", "a=%u")
	second := reg.Register("second", "b=%c", func(data *[]byte) error { return nil })
	third := reg.Register("third", "", func(data *[]byte) error { return nil })

	if first != 0 || second != 1 || third != 2 {
		t.Errorf("Expected ids 0,1,2, got %d,%d,%d", first, second, third)
	}
	if reg.Count() != 3 {
		t.Errorf("Expected 3 entries, got %d", reg.Count())
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := NewRegistry()

	id1 := reg.Register("cmd", "x=%u", func(data *[]byte) error { return nil })
	id2 := reg.Register("cmd", "x=%u", func(data *[]byte) error { return nil })

	if id1 != id2 {
		t.Errorf("Duplicate registration changed id: %d then %d", id1, id2)
	}
	if reg.Count() != 1 {
		t.Errorf("Expected 1 entry, got %d", reg.Count())
	}
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()

	var got []byte
	reg.Register("take", "data=%*s", func(data *[]byte) error {
		got = append([]byte(nil), (*data)...)
		*data = (*data)[len(*data):]
		return nil
	})

	payload := []byte{0xAA, 0xBB}
	data := payload
	if err := reg.Dispatch(0, &data); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got) != 2 || got[0] != 0xAA {
		t.Errorf("Handler saw %v", got)
	}

	// Unknown ids and handlerless responses both refuse dispatch.
	if err := reg.Dispatch(42, &data); err == nil {
		t.Error("Expected error for unknown id")
	}
	reg.RegisterResponse("reply", "v=%u")
	if err := reg.Dispatch(1, &data); err == nil {
		t.Error("Expected error dispatching a response")
	}
}

func TestRegistryCommandsAndResponses(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterResponse("pong", "v=%u")
	reg.Register("ping", "v=%u", func(data *[]byte) error { return nil })
	reg.Register("bare", "", func(data *[]byte) error { return nil })

	commands, responses := reg.CommandsAndResponses()

	if id, ok := commands["ping v=%u"]; !ok || id != 1 {
		t.Errorf("Expected command 'ping v=%%u' with id 1, got %v %d", ok, id)
	}
	if id, ok := commands["bare"]; !ok || id != 2 {
		t.Errorf("Expected format-less command key 'bare', got %v %d", ok, id)
	}
	if id, ok := responses["pong v=%u"]; !ok || id != 0 {
		t.Errorf("Expected response 'pong v=%%u' with id 0, got %v %d", ok, id)
	}
	if len(commands) != 2 || len(responses) != 1 {
		t.Errorf("Split sizes wrong: %d commands, %d responses", len(commands), len(responses))
	}
}
