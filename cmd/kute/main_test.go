package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "kute "+version+"\n", out)
}

func TestModulesCommand(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "settings.gradle"), `include ':core', ':server'`)

	out, err := execute(t, "modules", root)
	require.NoError(t, err)
	assert.Contains(t, out, "build system: GRADLE")
	assert.Contains(t, out, "core")
	assert.Contains(t, out, "server")

	_, err = execute(t, "modules", filepath.Join(root, "settings.gradle"))
	assert.Error(t, err)
}

func TestScanAndShow(t *testing.T) {
	root := filepath.Join(t.TempDir(), "shop")
	writeFile(t, filepath.Join(root, "pom.xml"), `<project><artifactId>shop</artifactId></project>`)
	writeFile(t, filepath.Join(root, "src/main/java/shop/Cart.java"), `package shop;

public class Cart {
    public int total() { return 0; }
}
`)
	writeFile(t, filepath.Join(root, "src/test/java/shop/CartTest.java"), `package shop;

import org.junit.Test;

public class CartTest {
    @Test
    public void testTotal() {
        new Cart().total();
    }
}
`)

	work := t.TempDir()
	list := filepath.Join(work, "projects.txt")
	writeFile(t, list, "# local checkout\n"+root+"\n")
	outDir := filepath.Join(work, "out")
	metricsPath := filepath.Join(work, "kute.prom")

	out, err := execute(t, "scan",
		"--projects", list,
		"--format", "csv,sqlite",
		"--output", outDir,
		"--cpu-threads", "2",
		"--metrics-file", metricsPath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "1 submitted, 1 succeeded, 0 failed, 0 skipped; test methods written: 1")
	assert.FileExists(t, filepath.Join(outDir, "results.csv"))
	assert.FileExists(t, filepath.Join(outDir, "results.db"))
	assert.FileExists(t, metricsPath)

	out, err = execute(t, "show", filepath.Join(outDir, "results.db"))
	require.NoError(t, err)
	assert.Regexp(t, `shop\s+1\s+1\s+1`, out)
}

func TestScanRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "scan", "--method-strategy", "closest")
	assert.ErrorContains(t, err, "invalid configuration")
}
