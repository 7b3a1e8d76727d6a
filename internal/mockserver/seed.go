package mockserver

import (
	"github.com/wigennn/novel-tui/internal/client"
)

// Demo account created by SeedDemo.
const (
	DemoEmail    = "demo@example.com"
	DemoPassword = "demo1234"
)

// SeedDemo creates the demo account with two novels and a handful of tasks
// at different speeds; one of them fails.
func SeedDemo(store *Store, gen *Generator) (client.User, error) {
	u, err := store.CreateUser(client.RegisterRequest{
		Username: "demo",
		Email:    DemoEmail,
		Password: DemoPassword,
	})
	if err != nil {
		return client.User{}, err
	}

	keeper := store.AddNovel(client.Novel{
		UserID:        u.ID,
		Title:         "The Lighthouse Keeper",
		Genre:         "mystery",
		SettingText:   "A remote island, a lamp that must never go dark, and a keeper who is not who he says.",
		ChapterNumber: 2,
	})
	for _, ch := range outlineChapters(keeper, 1, 2) {
		ch.Status = 2
		ch.Content = chapterText(keeper, ch)
		store.PutChapter(ch)
	}
	orchard := store.AddNovel(client.Novel{
		UserID: u.ID,
		Title:  "Salt Orchard",
		Genre:  "literary",
	})

	gen.Enqueue(u.ID, client.Task{
		Name: "Structure: Salt Orchard", Type: TypeNovelStructure, RelationID: orchard.ID,
	}, 2, false)
	gen.Enqueue(u.ID, client.Task{
		Name: "Outline: The Lighthouse Keeper", Type: TypeChapterOutline, RelationID: keeper.ID,
	}, 4, false)
	gen.Enqueue(u.ID, client.Task{
		Name: "Chapter 3: The Lighthouse Keeper", Type: TypeChapter, RelationID: keeper.ID,
	}, 6, false)
	gen.Enqueue(u.ID, client.Task{
		Name: "Chapter 4: The Lighthouse Keeper", Type: TypeChapter, RelationID: keeper.ID,
	}, 5, true)
	return u, nil
}
