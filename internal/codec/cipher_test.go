package codec

import "testing"

func testKey() [KeySize]byte {
	var k [KeySize]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	headers := []byte("headers-as-associated-data")
	plaintext := []byte("set_long object=1 field=10 value=100")

	ciphertext := c.Seal(42, headers, plaintext)
	got, err := c.Open(42, headers, ciphertext)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("Open() = %q, want %q", got, plaintext)
	}
}

func TestCipherRejectsWrongFrameID(t *testing.T) {
	c, _ := NewCipher(testKey())
	ciphertext := c.Seal(1, []byte("ad"), []byte("payload"))
	if _, err := c.Open(2, []byte("ad"), ciphertext); err != ErrDecrypt {
		t.Errorf("Open with wrong frame id = %v, want ErrDecrypt", err)
	}
}

func TestCipherRejectsTamperedAD(t *testing.T) {
	c, _ := NewCipher(testKey())
	ciphertext := c.Seal(1, []byte("ad"), []byte("payload"))
	if _, err := c.Open(1, []byte("different-ad"), ciphertext); err != ErrDecrypt {
		t.Errorf("Open with tampered AD = %v, want ErrDecrypt", err)
	}
}

func TestCipherRejectsTamperedBody(t *testing.T) {
	c, _ := NewCipher(testKey())
	ciphertext := c.Seal(1, []byte("ad"), []byte("payload"))
	ciphertext[0] ^= 0xFF
	if _, err := c.Open(1, []byte("ad"), ciphertext); err != ErrDecrypt {
		t.Errorf("Open with tampered body = %v, want ErrDecrypt", err)
	}
}
