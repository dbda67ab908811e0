package text

import (
	"bufio"
	"embed"
	"strings"
	"sync"
)

//go:embed stopwords/*.txt
var stopwordFiles embed.FS

var (
	stopwordMu    sync.Mutex
	stopwordCache = map[string]map[string]struct{}{}
)

// stopwordsFor loads stopwords/<code>.txt once. Languages without a file
// get an empty set, which disables the stopword ratio check for them.
func stopwordsFor(code string) map[string]struct{} {
	stopwordMu.Lock()
	defer stopwordMu.Unlock()
	if set, ok := stopwordCache[code]; ok {
		return set
	}
	set := map[string]struct{}{}
	f, err := stopwordFiles.Open("stopwords/" + code + ".txt")
	if err == nil {
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			w := strings.ToLower(strings.TrimSpace(sc.Text()))
			if w == "" || strings.HasPrefix(w, "#") {
				continue
			}
			set[w] = struct{}{}
		}
	}
	stopwordCache[code] = set
	return set
}
