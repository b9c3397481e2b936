package httpwire

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGetRequest_Line(t *testing.T) {
	u, err := ParseURI("http://www.internet.org/path?id=1")
	require.NoError(t, err)

	req := string(BuildGetRequest(u))

	reqLine := regexp.MustCompile(`^GET\s/path\?id=1\sHTTP/1\.1\r\n`)
	assert.True(t, reqLine.MatchString(req))

	hostHdr := regexp.MustCompile(`\r\nHost:\swww\.internet\.org\r\n`)
	assert.True(t, hostHdr.MatchString(req))

	assert.Regexp(t, `\r\n\r\n$`, req)
}

func TestBuildGetRequest_NonDefaultPortInHost(t *testing.T) {
	u, err := ParseURI("http://www.internet.org:8080/path")
	require.NoError(t, err)

	req := string(BuildGetRequest(u))
	assert.Contains(t, req, "Host: www.internet.org:8080\r\n")
}
