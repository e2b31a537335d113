package scanner

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/starford/spotter/internal/models"
)

const infoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleName</key>
	<string>WeChat</string>
	<key>CFBundleIconFile</key>
	<string>AppIcon</string>
</dict>
</plist>
`

func TestScanApplications(t *testing.T) {
	root := t.TempDir()

	bundle := filepath.Join(root, "WeChat.app")
	writeFile(t, filepath.Join(bundle, "Contents", "Info.plist"), infoPlist)
	writeFile(t, filepath.Join(bundle, "Contents", "Resources", "AppIcon.icns"), "icns")
	writeFile(t, filepath.Join(bundle, "Contents", "Resources", "zh_CN.lproj", "InfoPlist.strings"),
		"CFBundleDisplayName = \"微信\";\n")

	// No icon: a helper, not an application.
	writeFile(t, filepath.Join(root, "Helper.app", "Contents", "Info.plist"), infoPlist)

	writeFile(t, filepath.Join(root, "firefox.desktop"), `[Desktop Entry]
Type=Application
Name=Firefox
Name[de]=Firefox Browser
Icon=firefox
Exec=firefox %u
`)
	writeFile(t, filepath.Join(root, "hidden.desktop"), `[Desktop Entry]
Type=Application
Name=Hidden
Icon=x
NoDisplay=true
`)
	writeFile(t, filepath.Join(root, "noicon.desktop"), `[Desktop Entry]
Type=Application
Name=No Icon
`)
	writeFile(t, filepath.Join(root, "readme.txt"), "not an app")

	c := &collector{}
	s := New(c.sink, testLogger(), WithLocales("zh_CN", "zh"))
	st, err := s.ScanApplications(context.Background(), []string{root, filepath.Join(root, "missing")})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	want := []string{bundle, filepath.Join(root, "firefox.desktop")}
	slices.Sort(want)
	if got := c.paths(); !slices.Equal(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if st.Count != 2 {
		t.Fatalf("count = %d", st.Count)
	}

	app, _ := c.byPath(bundle)
	if app.Name != "微信" || app.Kind != models.KindApp || app.Extension != "app" {
		t.Fatalf("bundle record = %+v", app)
	}
	if app.PhoneticFull != "weixin" || app.PhoneticAcronym != "wx" {
		t.Fatalf("bundle phonetic = %q/%q", app.PhoneticFull, app.PhoneticAcronym)
	}
	if app.Icon != filepath.Join(bundle, "Contents", "Resources", "AppIcon.icns") {
		t.Fatalf("bundle icon = %q", app.Icon)
	}

	ff, _ := c.byPath(filepath.Join(root, "firefox.desktop"))
	if ff.Name != "Firefox" || ff.Icon != "firefox" || ff.Extension != "desktop" || ff.Size != 0 {
		t.Fatalf("desktop record = %+v", ff)
	}
}

func TestAppRecord_FallsBackToBundleMetadata(t *testing.T) {
	root := t.TempDir()
	bundle := filepath.Join(root, "Chat.app")
	writeFile(t, filepath.Join(bundle, "Contents", "Info.plist"), infoPlist)
	writeFile(t, filepath.Join(bundle, "Contents", "Resources", "Other.icns"), "icns")

	s := New(nil, testLogger(), WithLocales("de"))
	r, ok := s.AppRecord(bundle)
	if !ok {
		t.Fatal("expected application record")
	}
	if r.Name != "WeChat" {
		t.Fatalf("name = %q, want bundle name", r.Name)
	}
	if r.Icon != filepath.Join(bundle, "Contents", "Resources", "Other.icns") {
		t.Fatalf("icon = %q", r.Icon)
	}
	if r.PhoneticFull != "" {
		t.Fatalf("latin name got phonetic %q", r.PhoneticFull)
	}
}

type fakeNamer map[string]string

func (f fakeNamer) DisplayName(path string) (string, bool) {
	n, ok := f[path]
	return n, ok
}

func TestAppRecord_DisplayNamerAndStem(t *testing.T) {
	root := t.TempDir()
	bundle := filepath.Join(root, "Visual Studio Code.app")
	writeFile(t, filepath.Join(bundle, "Contents", "Resources", "Code.icns"), "icns")

	r, ok := New(nil, testLogger()).AppRecord(bundle)
	if !ok || r.Name != "Visual Studio Code" {
		t.Fatalf("stem fallback: ok=%v name=%q", ok, r.Name)
	}

	r, ok = New(nil, testLogger(), WithDisplayNamer(fakeNamer{bundle: "VS Code"})).AppRecord(bundle)
	if !ok || r.Name != "VS Code" {
		t.Fatalf("namer: ok=%v name=%q", ok, r.Name)
	}
}

func TestLprojDirs(t *testing.T) {
	got := lprojDirs([]string{"zh_CN", "zh"})
	want := []string{"zh-Hans", "zh_CN", "zh_Hans", "zh-CN", "zh"}
	if !slices.Equal(got, want) {
		t.Fatalf("lprojDirs = %v, want %v", got, want)
	}
}
