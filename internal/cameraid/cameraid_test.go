package cameraid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUSBCamera(t *testing.T) {
	p := Parse("usb_1", nil)
	assert.Equal(t, USB, p.Type)
	assert.Equal(t, "1", p.Source)
}

func TestParseTestCamera(t *testing.T) {
	p := Parse("test", nil)
	assert.Equal(t, Test, p.Type)
	assert.Equal(t, "", p.Source)
}

func TestParseIPCamera(t *testing.T) {
	p := Parse("ip_192.168.1.100", nil)
	assert.Equal(t, IP, p.Type)
	assert.Equal(t, "192.168.1.100", p.Source)
}

func TestParseUnknownFormatDefaultsToUSBZero(t *testing.T) {
	p := Parse("invalid", nil)
	assert.Equal(t, USB, p.Type)
	assert.Equal(t, "0", p.Source)
}

func TestParseEmptyDefaultsToUSBZero(t *testing.T) {
	p := Parse("", nil)
	assert.Equal(t, USB, p.Type)
	assert.Equal(t, "0", p.Source)
}

func TestParseMalformedUSBDefaultsToZero(t *testing.T) {
	p := Parse("usb_abc", nil)
	assert.Equal(t, USB, p.Type)
	assert.Equal(t, "0", p.Source)
}

func TestFormatRoundTrip(t *testing.T) {
	s, err := Format(USB, "2")
	assert.NoError(t, err)
	assert.Equal(t, "usb_2", s)

	s, err = Format(Test, "")
	assert.NoError(t, err)
	assert.Equal(t, "test", s)

	s, err = Format(IP, "10.0.0.5")
	assert.NoError(t, err)
	assert.Equal(t, "ip_10.0.0.5", s)
}

func TestFormatIPWithoutSourceErrors(t *testing.T) {
	_, err := Format(IP, "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.True(t, Validate("usb_0"))
	assert.True(t, Validate("test"))
	assert.True(t, Validate("ip_10.0.0.1"))
	assert.False(t, Validate(""))
	assert.False(t, Validate("usb_x"))
	assert.False(t, Validate("ip_"))
	assert.False(t, Validate("bogus"))
}

func TestTypePredicates(t *testing.T) {
	assert.True(t, IsUSBCamera("usb_0"))
	assert.True(t, IsTestCamera("test"))
	assert.True(t, IsIPCamera("ip_1.2.3.4"))
	assert.False(t, IsUSBCamera("ip_1.2.3.4"))
}
