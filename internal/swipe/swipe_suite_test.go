package swipe_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSwipe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Swipe Suite")
}
