package httpwire

import "fmt"

// BuildGetRequest produces the literal bytes of a GET request: request
// line, Host header, a blank line, nothing else. No body, no
// conditional or connection-management headers — the system never
// resumes a partial download today.
func BuildGetRequest(u ParsedURI) []byte {
	req := fmt.Sprintf(
		"GET %s HTTP/1.1\r\n"+
			"Host: %s\r\n"+
			"\r\n",
		u.RequestTarget, hostHeader(u),
	)
	return []byte(req)
}

// hostHeader omits the port when it's the scheme's default, matching
// how a browser would address the target.
func hostHeader(u ParsedURI) string {
	if (u.Scheme == "http" && u.Port == 80) || (u.Scheme == "https" && u.Port == 443) {
		return u.Host
	}
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}
