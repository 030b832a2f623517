package command

// EncodeBatch encodes a sequence of commands into one buffer sharing a
// single CommandContext, as they would appear in one frame body.
func EncodeBatch(commands []Command) []byte {
	ctx := NewCommandContext()
	var buf []byte
	for _, c := range commands {
		ctx.Encode(&buf, c)
	}
	return buf
}

// DecodeBatch decodes every command out of a buffer produced by
// EncodeBatch.
func DecodeBatch(b []byte) ([]Command, error) {
	ctx := NewCommandContext()
	var out []Command
	for len(b) > 0 {
		c, n, err := ctx.Decode(b)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		b = b[n:]
	}
	return out, nil
}
