package classifier

import (
	"github.com/jbrukh/bayesian"
)

// bayesModel is a multinomial naive Bayes classifier over TF-IDF weighted terms.
// It needs at least two distinct classes.
type bayesModel struct {
	cl      *bayesian.Classifier
	classes []bayesian.Class
}

func trainBayes(docs [][]string, y []int, labels []string) *bayesModel {
	classes := make([]bayesian.Class, len(labels))
	for i, l := range labels {
		classes[i] = bayesian.Class(l)
	}
	cl := bayesian.NewClassifierTfIdf(classes...)
	for i, doc := range docs {
		cl.Learn(doc, classes[y[i]])
	}
	cl.ConvertTermsFreqToTfIdf()
	return &bayesModel{cl: cl, classes: classes}
}

func (m *bayesModel) predict(terms []string) int {
	_, inx, _ := m.cl.LogScores(terms)
	return inx
}
