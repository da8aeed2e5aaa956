// Package dataset loads the gzipped MNIST IDX files and chunks them into the
// fixed-size minibatches the training loop consumes.
package dataset

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801

	trainImagesFile = "train-images-idx3-ubyte.gz"
	trainLabelsFile = "train-labels-idx1-ubyte.gz"
	testImagesFile  = "t10k-images-idx3-ubyte.gz"
	testLabelsFile  = "t10k-labels-idx1-ubyte.gz"
)

// ImgSize is the side length of an MNIST image.
const ImgSize = 28

// InputDim is the flattened image length.
const InputDim = ImgSize * ImgSize

// NumClasses is the number of digit classes.
const NumClasses = 10

// Load reads the four gzipped IDX files under dir and returns the batched
// train/validation/test splits. The last sixth of the training file is held
// out as the validation split (the conventional 50k/10k for full MNIST).
func Load(dir string, batchSize int) (Splits, error) {
	trainImages, err := readImages(filepath.Join(dir, trainImagesFile))
	if err != nil {
		return Splits{}, err
	}
	trainLabels, err := readLabels(filepath.Join(dir, trainLabelsFile))
	if err != nil {
		return Splits{}, err
	}
	if len(trainImages) != len(trainLabels) {
		return Splits{}, errors.Errorf("dataset: %d train images but %d labels", len(trainImages), len(trainLabels))
	}
	testImages, err := readImages(filepath.Join(dir, testImagesFile))
	if err != nil {
		return Splits{}, err
	}
	testLabels, err := readLabels(filepath.Join(dir, testLabelsFile))
	if err != nil {
		return Splits{}, err
	}
	if len(testImages) != len(testLabels) {
		return Splits{}, errors.Errorf("dataset: %d test images but %d labels", len(testImages), len(testLabels))
	}

	holdout := len(trainImages) / 6
	split := len(trainImages) - holdout

	splits := Splits{
		Train: MakeBatches(trainImages[:split], trainLabels[:split], batchSize),
		Valid: MakeBatches(trainImages[split:], trainLabels[split:], batchSize),
		Test:  MakeBatches(testImages, testLabels, batchSize),
	}
	if len(splits.Train) == 0 || len(splits.Valid) == 0 || len(splits.Test) == 0 {
		return Splits{}, errors.Errorf("dataset: not enough examples for batch size %d", batchSize)
	}
	return splits, nil
}

// readImages parses an IDX3 image file, scaling pixels to [0, 1].
func readImages(path string) ([][]float64, error) {
	r, closeAll, err := openGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	var hdr struct {
		Magic uint32
		Count uint32
		Rows  uint32
		Cols  uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrapf(err, "read header of %s", filepath.Base(path))
	}
	if hdr.Magic != imageMagic {
		return nil, errors.Errorf("%s: bad image magic 0x%08x", filepath.Base(path), hdr.Magic)
	}
	dim := int(hdr.Rows) * int(hdr.Cols)
	images := make([][]float64, hdr.Count)
	raw := make([]byte, dim)
	for i := range images {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, errors.Wrapf(err, "read image %d of %s", i, filepath.Base(path))
		}
		pixels := make([]float64, dim)
		for j, p := range raw {
			pixels[j] = float64(p) / 255
		}
		images[i] = pixels
	}
	return images, nil
}

// readLabels parses an IDX1 label file.
func readLabels(path string) ([]int, error) {
	r, closeAll, err := openGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	var hdr struct {
		Magic uint32
		Count uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrapf(err, "read header of %s", filepath.Base(path))
	}
	if hdr.Magic != labelMagic {
		return nil, errors.Errorf("%s: bad label magic 0x%08x", filepath.Base(path), hdr.Magic)
	}
	raw := make([]byte, hdr.Count)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrapf(err, "read labels of %s", filepath.Base(path))
	}
	labels := make([]int, hdr.Count)
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}

func openGzip(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open dataset file")
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "decompress %s", filepath.Base(path))
	}
	return gz, func() {
		gz.Close()
		f.Close()
	}, nil
}
