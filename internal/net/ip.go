package net

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Scheme prefixes share links printed by the server and accepted by the client.
const Scheme = "liveboard://"

// GetOutgoingIP finds the preferred local IP address to put in share links.
func GetOutgoingIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		// No route to the internet, pick an interface instead.
		return firstIPv4().String()
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func firstIPv4() net.IP {
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	slog.Warn("no suitable local IP found, share link uses loopback")
	return net.IPv4(127, 0, 0, 1)
}

// Link is the parsed form of a share link.
type Link struct {
	Addr       string
	Room       int64
	SessionKey string
}

func (l Link) String() string {
	s := Scheme + l.Addr
	q := url.Values{}
	if l.Room != 0 {
		q.Set("room", strconv.FormatInt(l.Room, 10))
	}
	if l.SessionKey != "" {
		q.Set("sessionKey", l.SessionKey)
	}
	if len(q) > 0 {
		s += "?" + q.Encode()
	}
	return s
}

// ParseLink reads liveboard://host:port[/][?room=N&sessionKey=K].
func ParseLink(link string) (Link, error) {
	rest, ok := strings.CutPrefix(link, Scheme)
	if !ok {
		return Link{}, fmt.Errorf("not a %s link: %q", Scheme, link)
	}
	addr, rawQuery, _ := strings.Cut(rest, "?")
	addr = strings.TrimSuffix(addr, "/")
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return Link{}, fmt.Errorf("bad link address %q: %w", addr, err)
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Link{}, fmt.Errorf("bad link query: %w", err)
	}
	l := Link{Addr: addr, SessionKey: q.Get("sessionKey")}
	if v := q.Get("room"); v != "" {
		if l.Room, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Link{}, fmt.Errorf("bad room in link: %w", err)
		}
	}
	return l, nil
}
