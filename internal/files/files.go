// Package files stages the document files for a package: selecting
// the primary PDF, building its destination name, and archiving any
// supplemental materials.
package files

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cu-library/etddepositor/internal/etd"
)

// nameBudget caps the destination filename length before the extension
// is added.
const nameBudget = 120

// CopyPackageFiles stages the package's documents into filesDir and
// returns their names, primary PDF first. A supplemental subdirectory
// under data becomes a zip archive named after the primary file.
func CopyPackageFiles(data etd.PackageData, packagePath, filesDir string) ([]string, error) {
	pdfName, err := copyThesisPDF(data, packagePath, filesDir)
	if err != nil {
		return nil, err
	}

	supplementalPath := filepath.Join(packagePath, "data", "supplemental")
	info, err := os.Stat(supplementalPath)
	if err != nil || !info.IsDir() {
		return []string{pdfName}, nil
	}

	archiveName := strings.TrimSuffix(pdfName, ".pdf") + "-supplemental.zip"
	if err := ZipDirectory(supplementalPath, filepath.Join(filesDir, archiveName)); err != nil {
		return nil, fmt.Errorf("archive supplemental files: %w", err)
	}
	return []string{pdfName, archiveName}, nil
}

// copyThesisPDF finds the primary document and copies it under its
// destination name. File names in submitted packages are not reliably
// structured, so the largest PDF in the data directory wins.
func copyThesisPDF(data etd.PackageData, packagePath, filesDir string) (string, error) {
	candidates, err := filepath.Glob(filepath.Join(packagePath, "data", "*.pdf"))
	if err != nil {
		return "", err
	}

	var thesisPath string
	var largest int64
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.Size() > largest {
			thesisPath = candidate
			largest = info.Size()
		}
	}
	if thesisPath == "" {
		return "", etd.MissingFilef("could not find pdf file in %s", packagePath)
	}

	destName := DestinationName(data.Creator, data.Title)
	if err := copyPreservingMetadata(thesisPath, filepath.Join(filesDir, destName)); err != nil {
		return "", fmt.Errorf("copy thesis pdf: %w", err)
	}
	return destName, nil
}

// DestinationName builds the deterministic staged filename: the
// simplified creator name, a double hyphen, then as many
// alphanumeric-filtered title words as fit under the length budget.
func DestinationName(creator, title string) string {
	name := strings.ToLower(creator)
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, ",", "-")
	name += "--"

	var words []string
	wordsLen := 0
	for _, word := range strings.Fields(title) {
		filtered := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, word)
		if len(name)+wordsLen > nameBudget {
			break
		}
		words = append(words, filtered)
		wordsLen += len(filtered)
	}

	return strings.ToLower(name+strings.Join(words, "-")) + ".pdf"
}

func copyPreservingMetadata(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return err
	}
	if err := destination.Close(); err != nil {
		return err
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// Unzip extracts an archive into destDir, refusing entries that would
// escape it.
func Unzip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes %s", entry.Name, destDir)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		source, err := entry.Open()
		if err != nil {
			return err
		}
		destination, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode().Perm())
		if err != nil {
			source.Close()
			return err
		}
		_, err = io.Copy(destination, source)
		source.Close()
		if closeErr := destination.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ZipDirectory archives a directory tree into a zip file, storing
// entries under their directory-relative names.
func ZipDirectory(dir, archivePath string) error {
	archive, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	writer := zip.NewWriter(archive)
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		target, err := writer.Create(filepath.ToSlash(relative))
		if err != nil {
			return err
		}
		source, err := os.Open(path)
		if err != nil {
			return err
		}
		defer source.Close()
		_, err = io.Copy(target, source)
		return err
	})
	if err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return archive.Close()
}
