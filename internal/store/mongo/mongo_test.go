package mongo

import (
	"testing"
	"time"

	"github.com/inkpost/inkpost/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUpdateDocumentOnlySetsPresentFields(t *testing.T) {
	title := "New title"
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	update := updateDocument(model.PostPatch{Title: &title, UpdatedAt: at})

	set, ok := update["$set"].(bson.M)
	if !ok {
		t.Fatalf("expected $set document, got %#v", update)
	}
	if len(set) != 2 {
		t.Fatalf("expected title and updatedAt only, got %#v", set)
	}
	if set["title"] != "New title" {
		t.Fatalf("unexpected title: %#v", set["title"])
	}
	if set["updatedAt"] != at {
		t.Fatalf("unexpected updatedAt: %#v", set["updatedAt"])
	}
	if _, ok := update["$unset"]; ok {
		t.Fatalf("did not expect $unset")
	}
}

func TestUpdateDocumentEmptyCoverUnsets(t *testing.T) {
	empty := ""
	summary := ""
	update := updateDocument(model.PostPatch{Cover: &empty, Summary: &summary})

	unset, ok := update["$unset"].(bson.M)
	if !ok || len(unset) != 1 {
		t.Fatalf("expected cover in $unset, got %#v", update)
	}
	if _, ok := unset["cover"]; !ok {
		t.Fatalf("expected cover in $unset, got %#v", unset)
	}
	set := update["$set"].(bson.M)
	if v, ok := set["summary"]; !ok || v != "" {
		t.Fatalf("expected explicit empty summary, got %#v", set)
	}
}

func TestPostPipelineStages(t *testing.T) {
	pipeline := postPipeline(bson.M{"category": "React"}, 20)
	if len(pipeline) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(pipeline))
	}
	want := []string{"$match", "$sort", "$limit", "$lookup"}
	for i, stage := range pipeline {
		if stage[0].Key != want[i] {
			t.Fatalf("stage %d: expected %s, got %s", i, want[i], stage[0].Key)
		}
	}
}

func TestPostDocToModel(t *testing.T) {
	author := primitive.NewObjectID()
	doc := postDoc{
		ID:         primitive.NewObjectID(),
		Title:      "Title",
		Category:   "Python",
		Author:     author,
		AuthorInfo: []authorDoc{{ID: author, Username: "someauthor"}},
	}
	p := doc.toModel()
	if p.Author.ID != author.Hex() || p.Author.Username != "someauthor" {
		t.Fatalf("unexpected author: %+v", p.Author)
	}
	if p.ID != doc.ID.Hex() {
		t.Fatalf("unexpected id: %s", p.ID)
	}
}
