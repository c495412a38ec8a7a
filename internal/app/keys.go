package app

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/tomes/tomes/internal/config"
)

type keyMap struct {
	PlayPause    key.Binding
	NextTrack    key.Binding
	PrevTrack    key.Binding
	SeekForward  key.Binding
	SeekBackward key.Binding
	SeekFar      key.Binding
	SeekFarBack  key.Binding
	VolumeUp     key.Binding
	VolumeDown   key.Binding
	SpeedUp      key.Binding
	SpeedDown    key.Binding
	Shuffle      key.Binding
	Loop         key.Binding
	Search       key.Binding
	Back         key.Binding
	Help         key.Binding
	Quit         key.Binding

	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	NextPage key.Binding
	PrevPage key.Binding
	Category key.Binding
	Filter   key.Binding
	Retry    key.Binding
}

// splitKeys turns "q,ctrl+c" into its key names.
func splitKeys(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		if k == "space" {
			k = " "
		}
		out = append(out, k)
	}
	return out
}

func helpName(s string) string {
	keys := splitKeys(s)
	for i, k := range keys {
		if k == " " {
			keys[i] = "space"
		}
	}
	return strings.Join(keys, "/")
}

func binding(keys, desc string) key.Binding {
	return key.NewBinding(key.WithKeys(splitKeys(keys)...), key.WithHelp(helpName(keys), desc))
}

func newKeyMap(kb config.KeybindConfig) keyMap {
	return keyMap{
		PlayPause:    binding(kb.PlayPause, "play/pause"),
		NextTrack:    binding(kb.NextTrack, "next chapter"),
		PrevTrack:    binding(kb.PrevTrack, "previous chapter"),
		SeekForward:  binding(kb.SeekForward, "seek forward"),
		SeekBackward: binding(kb.SeekBackward, "seek back"),
		SeekFar:      binding("L", "seek far forward"),
		SeekFarBack:  binding("H", "seek far back"),
		VolumeUp:     binding(kb.VolumeUp, "volume up"),
		VolumeDown:   binding(kb.VolumeDown, "volume down"),
		SpeedUp:      binding(kb.SpeedUp, "faster"),
		SpeedDown:    binding(kb.SpeedDown, "slower"),
		Shuffle:      binding(kb.Shuffle, "shuffle"),
		Loop:         binding(kb.Loop, "loop mode"),
		Search:       binding(kb.Search, "search / jump"),
		Back:         binding(kb.Back, "back"),
		Help:         binding(kb.Help, "help"),
		Quit:         binding(kb.Quit, "quit"),

		Up:       binding("k,up", "up"),
		Down:     binding("j,down", "down"),
		Select:   binding("enter", "open / play"),
		NextPage: binding("pgdown,ctrl+f", "next page"),
		PrevPage: binding("pgup,ctrl+b", "previous page"),
		Category: binding("tab", "next category"),
		Filter:   binding("1,2,3", "toggle filter"),
		Retry:    binding("R", "retry"),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PlayPause, k.NextTrack, k.PrevTrack, k.Search, k.Back, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PlayPause, k.NextTrack, k.PrevTrack, k.SeekForward, k.SeekBackward, k.SeekFar, k.SeekFarBack},
		{k.VolumeUp, k.VolumeDown, k.SpeedUp, k.SpeedDown, k.Shuffle, k.Loop},
		{k.Up, k.Down, k.Select, k.NextPage, k.PrevPage, k.Category, k.Filter},
		{k.Search, k.Back, k.Retry, k.Help, k.Quit},
	}
}
