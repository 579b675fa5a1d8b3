package prediction

import "skirmish/server/internal/command"

// Buffer holds unconfirmed commands for one entity and category in
// non-decreasing tick order.
type Buffer struct {
	commands []command.Command
}

// Push appends cmd, refusing ticks older than the current tail.
func (b *Buffer) Push(cmd command.Command) bool {
	if n := len(b.commands); n > 0 && cmd.Tick() < b.commands[n-1].Tick() {
		return false
	}
	b.commands = append(b.commands, cmd)
	return true
}

// Peek returns the oldest buffered command.
func (b *Buffer) Peek() (command.Command, bool) {
	if len(b.commands) == 0 {
		return command.Command{}, false
	}
	return b.commands[0], true
}

// LastTick returns the tick of the newest buffered command.
func (b *Buffer) LastTick() (int64, bool) {
	if len(b.commands) == 0 {
		return 0, false
	}
	return b.commands[len(b.commands)-1].Tick(), true
}

// PopConfirmed removes every command whose tick is at or before confirmed
// and reports how many were removed.
func (b *Buffer) PopConfirmed(confirmed int64) int {
	n := 0
	for n < len(b.commands) && b.commands[n].Tick() <= confirmed {
		n++
	}
	if n == 0 {
		return 0
	}
	remaining := copy(b.commands, b.commands[n:])
	clear(b.commands[remaining:])
	b.commands = b.commands[:remaining]
	return n
}

// Len reports the number of buffered commands.
func (b *Buffer) Len() int {
	return len(b.commands)
}

// Commands copies the buffered commands in order.
func (b *Buffer) Commands() []command.Command {
	if len(b.commands) == 0 {
		return nil
	}
	return append([]command.Command(nil), b.commands...)
}

// Reset drops every buffered command.
func (b *Buffer) Reset() {
	clear(b.commands)
	b.commands = b.commands[:0]
}
