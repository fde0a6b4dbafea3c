package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// loadNetscapeCookies parses the Netscape cookie-jar line format (spec §6
// cookie_list) and seeds jar with the resulting cookies. Each non-comment,
// non-blank line has 7 tab-separated fields:
//
//	domain  include_subdomains  path  secure  expiry  name  value
func loadNetscapeCookies(jar http.CookieJar, cookieList string) error {
	byHost := map[string][]*http.Cookie{}
	for _, line := range strings.Split(cookieList, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return fmt.Errorf("cookies: malformed line %q", line)
		}
		domain := fields[0]
		path := fields[2]
		secure := strings.EqualFold(fields[3], "TRUE")
		expiryUnix, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return fmt.Errorf("cookies: invalid expiry in %q: %w", line, err)
		}
		name, value := fields[5], fields[6]

		host := strings.TrimPrefix(domain, ".")
		c := &http.Cookie{
			Name:   name,
			Value:  value,
			Path:   path,
			Domain: domain,
			Secure: secure,
		}
		if expiryUnix > 0 {
			c.Expires = time.Unix(expiryUnix, 0)
		}
		byHost[host] = append(byHost[host], c)
	}
	for host, cookies := range byHost {
		scheme := "http"
		for _, c := range cookies {
			if c.Secure {
				scheme = "https"
			}
		}
		u := &url.URL{Scheme: scheme, Host: host}
		jar.SetCookies(u, cookies)
	}
	return nil
}
